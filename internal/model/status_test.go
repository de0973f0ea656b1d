package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOldVerified.Terminal())
	assert.False(t, StatusNewVerified.Terminal())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{StatusPending, StatusOldVerified, true},
		{StatusPending, StatusNewVerified, false},
		{StatusPending, StatusCompleted, false},
		{StatusOldVerified, StatusNewVerified, true},
		{StatusOldVerified, StatusCompleted, false},
		{StatusOldVerified, StatusOldVerified, false},
		{StatusNewVerified, StatusCompleted, true},
		{StatusNewVerified, StatusOldVerified, false},

		// Cancellation and expiry are reachable from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusOldVerified, StatusCancelled, true},
		{StatusNewVerified, StatusCancelled, true},
		{StatusPending, StatusExpired, true},
		{StatusOldVerified, StatusExpired, true},
		{StatusNewVerified, StatusExpired, true},

		// Terminal states accept nothing
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusExpired, StatusOldVerified, false},
		{StatusCompleted, StatusExpired, false},
	}

	for _, c := range cases {
		assert.Equalf(t, c.ok, c.from.CanTransition(c.to), "%v -> %v", c.from, c.to)
	}
}

func TestRequestStatusStep(t *testing.T) {
	assert.Equal(t, 1, StatusPending.Step())
	assert.Equal(t, 2, StatusOldVerified.Step())
	assert.Equal(t, 3, StatusNewVerified.Step())

	assert.Equal(t, 0, StatusCompleted.Step())
	assert.Equal(t, 0, StatusCancelled.Step())
	assert.Equal(t, 0, StatusExpired.Step())
}

func TestRequestStatusValid(t *testing.T) {
	for _, s := range []RequestStatus{
		StatusPending, StatusOldVerified, StatusNewVerified,
		StatusCompleted, StatusCancelled, StatusExpired,
	} {
		assert.True(t, s.Valid())
	}

	assert.False(t, RequestStatus("verified").Valid())
	assert.False(t, RequestStatus("").Valid())
}
