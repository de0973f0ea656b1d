package client

import (
	"context"
	"errors"

	"grcadmin/account-api/internal/emailchange"
	"grcadmin/account-api/internal/model"
)

// Controller drives the four-step email change wizard. Everything it holds
// is a projection of the last server response; nothing here is authoritative
// and all of it can be rebuilt with Refresh after a reload.
//
// Steps: 0 idle, 1 verify old mailbox, 2 verify new mailbox, 3 confirm.
type Controller struct {
	api *Client

	Step      int
	RequestID string
	OldEmail  string
	NewEmail  string
}

var ErrNoActiveStep = errors.New("no action available at the current step")

func NewController(api *Client) *Controller {
	return &Controller{api: api}
}

func (w *Controller) reset() {
	w.Step = 0
	w.RequestID = ""
	w.OldEmail = ""
	w.NewEmail = ""
}

// Refresh rebuilds the local projection from the server. Called on mount and
// whenever the caller suspects drift.
func (w *Controller) Refresh(ctx context.Context) error {
	proj, err := w.api.GetStatus(ctx)
	if err != nil {
		return err
	}

	if !proj.HasActiveRequest {
		w.reset()
		return nil
	}

	w.Step = proj.Request.Status.Step()
	w.RequestID = proj.Request.ID
	w.OldEmail = proj.Request.OldEmail
	w.NewEmail = proj.Request.NewEmail

	return nil
}

// Start opens a new request. On success the wizard lands on step 1; on
// failure nothing local changes.
func (w *Controller) Start(ctx context.Context, newEmail string) error {
	if w.Step != 0 {
		return emailchange.ErrAlreadyActive
	}

	id, status, err := w.api.RequestChange(ctx, newEmail)
	if err != nil {
		return err
	}

	w.RequestID = id
	w.NewEmail = newEmail
	w.Step = status.Step()

	return nil
}

// SubmitCode sends the user's code to whichever side the current step is
// waiting on. The step only advances to what the returned status implies,
// never optimistically.
func (w *Controller) SubmitCode(ctx context.Context, code string) error {
	var (
		status model.RequestStatus
		err    error
	)

	switch w.Step {
	case 1:
		status, err = w.api.VerifyOldEmail(ctx, w.RequestID, code)
	case 2:
		status, err = w.api.VerifyNewEmail(ctx, w.RequestID, code)
	default:
		return ErrNoActiveStep
	}
	if err != nil {
		return err
	}

	w.Step = status.Step()
	return nil
}

// Complete performs the final swap and resets the wizard. The confirmed
// address stays in NewEmail for the success screen.
func (w *Controller) Complete(ctx context.Context) error {
	if w.Step != 3 {
		return ErrNoActiveStep
	}

	email, err := w.api.CompleteChange(ctx, w.RequestID)
	if err != nil {
		return err
	}

	w.Step = 0
	w.RequestID = ""
	w.NewEmail = email

	return nil
}

// Cancel abandons the run. Local state only resets once the server confirms.
func (w *Controller) Cancel(ctx context.Context) error {
	if w.Step == 0 {
		return ErrNoActiveStep
	}

	if err := w.api.CancelChange(ctx, w.RequestID); err != nil {
		return err
	}

	w.reset()
	return nil
}

// Resend redelivers the code for the side the wizard is waiting on.
func (w *Controller) Resend(ctx context.Context) error {
	if w.Step != 1 && w.Step != 2 {
		return ErrNoActiveStep
	}

	return w.api.ResendCode(ctx, w.RequestID)
}
