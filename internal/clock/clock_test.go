package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockNowAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)
	assert.Equal(t, start, m.Now())

	m.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), m.Now())
}

func TestMockAfterIsImmediatelyReady(t *testing.T) {
	m := NewMock(time.Now())
	select {
	case <-m.After(time.Hour):
	default:
		t.Fatal("expected Mock.After to be immediately ready")
	}
}

func TestRealNowAdvances(t *testing.T) {
	var r Real
	t1 := r.Now()
	time.Sleep(time.Millisecond)
	t2 := r.Now()
	assert.True(t, t2.After(t1))
}
