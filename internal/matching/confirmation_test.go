package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abdoElHodaky/obcore/internal/apperrors"
	"github.com/abdoElHodaky/obcore/internal/model"
)

func newTestEngine() *Engine {
	return &Engine{
		confirmations: make(map[string]*model.PendingConfirmation),
		declined:      make(map[string]declinedPair),
	}
}

func TestShortToken(t *testing.T) {
	assert.Equal(t, "abcdef01", shortToken("abcdef0123456789"))
	assert.Equal(t, "short", shortToken("short"), "an ID shorter than 8 chars is returned unchanged")
}

func TestResolveConfirmationUnknownKey(t *testing.T) {
	e := newTestEngine()
	err := e.ResolveConfirmation(context.Background(), "no-such-key", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeConfirmationUnknown))
}

func TestResolveConfirmationAlreadyResolved(t *testing.T) {
	e := newTestEngine()
	key := model.ConfirmationKey("mar24-cl", "b1", "o1")
	e.confirmations[key] = &model.PendingConfirmation{Key: key, State: model.ConfirmationTimedOut}

	err := e.ResolveConfirmation(context.Background(), key, true)
	assert.True(t, apperrors.Is(err, apperrors.CodeConfirmationExpired))
}

func TestResolveConfirmationByOrderPrefixNoMatch(t *testing.T) {
	e := newTestEngine()
	err := e.ResolveConfirmationByOrderPrefix(context.Background(), "deadbeef", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeConfirmationUnknown))
}

func TestDeclinedSetLifecycle(t *testing.T) {
	e := newTestEngine()
	assert.False(t, e.isDeclined("mar24-cl", "b1", "o1"))

	e.markDeclined("mar24-cl", "b1", "o1")
	assert.True(t, e.isDeclined("mar24-cl", "b1", "o1"))

	e.clearDeclined("mar24-cl", "b1", "o1")
	assert.False(t, e.isDeclined("mar24-cl", "b1", "o1"), "a successful trade clears the pair's declined status")
}

func TestConfirmationPastDeadlineIsDueForSweep(t *testing.T) {
	e := newTestEngine()
	past := model.ConfirmationKey("mar24-cl", "b1", "o1")
	e.confirmations[past] = &model.PendingConfirmation{
		Key: past, Contract: "mar24-cl", BidOrderID: "b1", OfferOrderID: "o1",
		SmallerOrder: "b1", LargerOrder: "o1",
		State:    model.ConfirmationAwaitingSmaller,
		Deadline: time.Now().Add(-time.Second),
	}

	// Directly exercise the sweep condition rather than running the
	// background ticker goroutine, since this engine has no clock/store/
	// bus/logger wired for declineConfirmation's notification fan-out.
	e.confMu.Lock()
	pc := e.confirmations[past]
	due := !time.Now().Before(pc.Deadline)
	e.confMu.Unlock()

	assert.True(t, due, "a confirmation past its deadline is due for timeout")
}
