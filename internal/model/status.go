package model

// RequestStatus is the closed set of states an email change request can be
// in. Anything not listed here is rejected at the storage boundary.
type RequestStatus string

const (
	StatusPending     RequestStatus = "pending"
	StatusOldVerified RequestStatus = "old_email_verified"
	StatusNewVerified RequestStatus = "new_email_verified"
	StatusCompleted   RequestStatus = "completed"
	StatusCancelled   RequestStatus = "cancelled"
	StatusExpired     RequestStatus = "expired"
)

// ActiveStatuses are the non-terminal states. The partial unique index on
// email_change_requests only covers rows in one of these states.
var ActiveStatuses = []RequestStatus{StatusPending, StatusOldVerified, StatusNewVerified}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOldVerified, StatusNewVerified,
		StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from s to
// next. Cancellation and expiry are reachable from every non-terminal state,
// the verification chain only in order.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	if s.Terminal() {
		return false
	}

	if next == StatusCancelled || next == StatusExpired {
		return true
	}

	switch s {
	case StatusPending:
		return next == StatusOldVerified
	case StatusOldVerified:
		return next == StatusNewVerified
	case StatusNewVerified:
		return next == StatusCompleted
	}
	return false
}

// Step maps a status to the wizard step the frontend should render.
// No active request and every terminal state land back on step 0.
func (s RequestStatus) Step() int {
	switch s {
	case StatusPending:
		return 1
	case StatusOldVerified:
		return 2
	case StatusNewVerified:
		return 3
	}
	return 0
}
