package emailchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grcadmin/account-api/internal/model"
	"grcadmin/account-api/validators"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Service executes workflow transitions against the request store. It is the
// only writer of email_change_requests rows.
type Service struct {
	DB       *gorm.DB
	Codes    CodeChannel
	Validity time.Duration
}

func NewService(db *gorm.DB, codes CodeChannel, validity time.Duration) *Service {
	return &Service{
		DB:       db,
		Codes:    codes,
		Validity: validity,
	}
}

// RequestView is the client-facing projection of a request.
type RequestView struct {
	ID        string              `json:"id"`
	OldEmail  string              `json:"old_email"`
	NewEmail  string              `json:"new_email"`
	Status    model.RequestStatus `json:"status"`
	ExpiresAt time.Time           `json:"expires_at"`
	Step      int                 `json:"step"`
}

// StatusProjection is the GetStatus result. Request stays set for a freshly
// expired run so the client can tell the user why they're back at step zero.
type StatusProjection struct {
	HasActiveRequest bool         `json:"has_active_request"`
	Request          *RequestView `json:"request,omitempty"`
}

func viewOf(req *model.EmailChangeRequest, effective model.RequestStatus) *RequestView {
	return &RequestView{
		ID:        req.ID,
		OldEmail:  req.OldEmail,
		NewEmail:  req.NewEmail,
		Status:    effective,
		ExpiresAt: req.ExpiresAt,
		Step:      effective.Step(),
	}
}

// RequestChange opens a new request for the account and triggers code
// delivery to the current address. Fails with ErrAlreadyActive while another
// run is still in flight.
func (s *Service) RequestChange(ctx context.Context, accountID, newEmail string) (*model.EmailChangeRequest, error) {
	if err := validators.EmailValidator(newEmail); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	var user model.User
	if err := s.DB.WithContext(ctx).Where("id = ?", accountID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if strings.EqualFold(newEmail, user.Email) {
		return nil, fmt.Errorf("%w: the new address must differ from the current one", ErrInvalidEmail)
	}

	// If the previous run timed out its row still occupies the active slot.
	// Retire it now so the index lets the new request in.
	var active model.EmailChangeRequest
	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, model.ActiveStatuses).
		First(&active).
		Error
	switch {
	case err == nil:
		if !active.TimedOut(time.Now()) {
			return nil, ErrAlreadyActive
		}
		if err := s.expire(ctx, &active); err != nil {
			return nil, err
		}
	case err != gorm.ErrRecordNotFound:
		return nil, err
	}

	id, err := gonanoid.Generate(idCharset, 21)
	if err != nil {
		return nil, err
	}

	req := &model.EmailChangeRequest{
		ID:        id,
		AccountID: accountID,
		OldEmail:  user.Email,
		NewEmail:  newEmail,
		Status:    model.StatusPending,
		ExpiresAt: time.Now().Add(s.Validity),
	}

	if err := s.DB.WithContext(ctx).Create(req).Error; err != nil {
		// The partial unique index is the authority on "one active request
		// per account". Losing the race surfaces the same way as the
		// friendly pre-check above.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyActive
		}
		return nil, err
	}

	if err := s.Codes.Issue(ctx, req, SideOld); err != nil {
		// Without a delivered code the request is unusable. Roll it back so
		// the user can retry cleanly.
		if derr := s.DB.WithContext(ctx).Delete(req).Error; derr != nil {
			zap.L().Error("Failed to roll back undeliverable request", zap.Error(derr), zap.String("requestID", req.ID))
		}
		return nil, err
	}

	return req, nil
}

// VerifyOldEmail checks the code sent to the current address. On success the
// request advances to old_email_verified and a code goes out to the new
// address.
func (s *Service) VerifyOldEmail(ctx context.Context, accountID, requestID, code string) (*model.EmailChangeRequest, error) {
	req, err := s.load(ctx, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}

	if req.Status != model.StatusPending {
		return nil, ErrInvalidState
	}

	if err := s.Codes.Check(ctx, req, SideOld, code); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, req, model.StatusPending, model.StatusOldVerified); err != nil {
		return nil, err
	}

	// The next step can't proceed without its code, but a delivery hiccup
	// here isn't fatal either: the resend endpoint covers it.
	if err := s.Codes.Issue(ctx, req, SideNew); err != nil {
		zap.L().Warn("Failed to deliver code to the new address",
			zap.Error(err), zap.String("requestID", req.ID))
	}

	return req, nil
}

// VerifyNewEmail checks the code sent to the prospective address. Calling it
// before the old side is verified fails with ErrOutOfOrder no matter what
// code is submitted.
func (s *Service) VerifyNewEmail(ctx context.Context, accountID, requestID, code string) (*model.EmailChangeRequest, error) {
	req, err := s.load(ctx, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}

	switch req.Status {
	case model.StatusPending:
		return nil, ErrOutOfOrder
	case model.StatusOldVerified:
	default:
		return nil, ErrInvalidState
	}

	if err := s.Codes.Check(ctx, req, SideNew, code); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, req, model.StatusOldVerified, model.StatusNewVerified); err != nil {
		return nil, err
	}

	return req, nil
}

// CompleteChange swaps the account's email of record and closes the request.
// Both writes happen in one transaction: there is no observable state where
// the email changed but the request didn't, or the other way around.
func (s *Service) CompleteChange(ctx context.Context, accountID, requestID string) (*model.EmailChangeRequest, error) {
	req, err := s.load(ctx, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}

	if req.Status != model.StatusNewVerified {
		return nil, ErrInvalidState
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.EmailChangeRequest{}).
			Where("id = ? AND status = ?", req.ID, model.StatusNewVerified).
			Update("status", model.StatusCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}

		res = tx.Model(&model.User{}).
			Where("id = ? AND email = ?", accountID, req.OldEmail).
			Update("email", req.NewEmail)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: account email no longer matches the request", ErrInvalidState)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	req.Status = model.StatusCompleted
	return req, nil
}

// CancelChange abandons the request. Allowed from every non-terminal state.
func (s *Service) CancelChange(ctx context.Context, accountID, requestID string) (*model.EmailChangeRequest, error) {
	req, err := s.load(ctx, accountID, requestID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}

	res := s.DB.WithContext(ctx).Model(&model.EmailChangeRequest{}).
		Where("id = ? AND status IN ?", req.ID, model.ActiveStatuses).
		Update("status", model.StatusCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyTerminal
	}

	req.Status = model.StatusCancelled
	return req, nil
}

// ResendCode redelivers the code for whichever side is currently awaiting
// verification. Doesn't change the request status.
func (s *Service) ResendCode(ctx context.Context, accountID, requestID string) error {
	req, err := s.load(ctx, accountID, requestID)
	if err != nil {
		return err
	}

	if err := s.gate(ctx, req); err != nil {
		return err
	}

	var side Side
	switch req.Status {
	case model.StatusPending:
		side = SideOld
	case model.StatusOldVerified:
		side = SideNew
	default:
		return ErrInvalidState
	}

	return s.Codes.Resend(ctx, req, side)
}

// GetStatus reports the account's active request, if any. Read-only: a
// timed-out row is reported as expired without being written back, the next
// mutating call persists it.
func (s *Service) GetStatus(ctx context.Context, accountID string) (*StatusProjection, error) {
	var req model.EmailChangeRequest

	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, model.ActiveStatuses).
		Order("created_at desc").
		First(&req).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &StatusProjection{}, nil
		}
		return nil, err
	}

	if req.TimedOut(time.Now()) {
		return &StatusProjection{
			HasActiveRequest: false,
			Request:          viewOf(&req, model.StatusExpired),
		}, nil
	}

	return &StatusProjection{
		HasActiveRequest: true,
		Request:          viewOf(&req, req.Status),
	}, nil
}

// History returns the account's most recent closed requests, newest first.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]model.EmailChangeRequest, error) {
	var rows []model.EmailChangeRequest

	err := s.DB.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.StatusCompleted).
		Order("updated_at desc").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (s *Service) load(ctx context.Context, accountID, requestID string) (*model.EmailChangeRequest, error) {
	var req model.EmailChangeRequest

	err := s.DB.WithContext(ctx).
		Where("id = ? AND account_id = ?", requestID, accountID).
		First(&req).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &req, nil
}

// gate rejects requests no mutating operation may touch anymore. Expiry is
// reported as expired whether the stored status already says so or the
// validity window lapsed without anything persisting it yet; the remedy for
// the caller is the same either way, start over. Only completed and
// cancelled rows read as already finished.
func (s *Service) gate(ctx context.Context, req *model.EmailChangeRequest) error {
	if req.Status == model.StatusExpired {
		return ErrExpired
	}

	if req.Status.Terminal() {
		return ErrAlreadyTerminal
	}

	if req.TimedOut(time.Now()) {
		if err := s.expire(ctx, req); err != nil {
			return err
		}
		return ErrExpired
	}

	return nil
}

// transition moves req from one status to the next with a guarded update.
// Zero rows affected means another call got there first.
func (s *Service) transition(ctx context.Context, req *model.EmailChangeRequest, from, to model.RequestStatus) error {
	if !from.CanTransition(to) {
		return ErrInvalidState
	}

	res := s.DB.WithContext(ctx).Model(&model.EmailChangeRequest{}).
		Where("id = ? AND status = ?", req.ID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}

	req.Status = to
	return nil
}

// expire persists the lazily computed expired status. Guarded like any other
// transition so it never clobbers a terminal row.
func (s *Service) expire(ctx context.Context, req *model.EmailChangeRequest) error {
	res := s.DB.WithContext(ctx).Model(&model.EmailChangeRequest{}).
		Where("id = ? AND status IN ?", req.ID, model.ActiveStatuses).
		Update("status", model.StatusExpired)
	if res.Error != nil {
		return res.Error
	}

	req.Status = model.StatusExpired
	return nil
}
