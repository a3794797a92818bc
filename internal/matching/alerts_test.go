package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlertThrottleAllowsOncePerInterval(t *testing.T) {
	th := newAlertThrottle()

	assert.True(t, th.allow("mar24-cl", "order-1", 5), "first alert for a key is always allowed")
	assert.False(t, th.allow("mar24-cl", "order-1", 5), "second alert within the interval is throttled")
}

func TestAlertThrottleTracksKeysIndependently(t *testing.T) {
	th := newAlertThrottle()

	assert.True(t, th.allow("mar24-cl", "order-1", 5))
	assert.True(t, th.allow("mar24-cl", "order-2", 5), "a different order ID is a different throttle bucket")
	assert.True(t, th.allow("apr24-cl", "order-1", 5), "a different contract is a different throttle bucket")
}
