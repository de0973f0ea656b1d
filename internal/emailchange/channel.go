package emailchange

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"grcadmin/account-api/internal/model"
	"grcadmin/account-api/pkg/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Side names the mailbox a verification code was delivered to.
type Side string

const (
	SideOld Side = "old"
	SideNew Side = "new"
)

// Mailer delivers a single message. The production implementation lives in
// internal/service and talks SMTP via gomail.
type Mailer interface {
	Send(to, subject, body string) error
}

// CodeChannel issues and checks the out-of-band verification codes for one
// side of a request. The workflow core only ever sees pass/fail from it.
type CodeChannel interface {
	Issue(ctx context.Context, req *model.EmailChangeRequest, side Side) error
	Check(ctx context.Context, req *model.EmailChangeRequest, side Side, code string) error
	Resend(ctx context.Context, req *model.EmailChangeRequest, side Side) error
}

// MailCodeChannel stores codes in the database and delivers them over SMTP.
type MailCodeChannel struct {
	DB             *gorm.DB
	Mailer         Mailer
	CodeLength     int
	CodeTTL        time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	// Resends allowed before the account is blocked for a day
	MaxResends int
}

func (m *MailCodeChannel) address(req *model.EmailChangeRequest, side Side) string {
	if side == SideNew {
		return req.NewEmail
	}
	return req.OldEmail
}

// Issue generates a fresh code for the given side, invalidates any earlier
// ones and mails it out. Mail goes first so we never persist a code nobody
// received.
func (m *MailCodeChannel) Issue(ctx context.Context, req *model.EmailChangeRequest, side Side) error {
	expiresAt := time.Now().Add(m.CodeTTL)

	code, err := security.MakeVerificationCode(&security.VerificationCodeOpts{
		AccountID: req.AccountID,
		RequestID: req.ID,
		Side:      string(side),
		Length:    m.CodeLength,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return err
	}

	subject := "Confirm your email change"
	body := fmt.Sprintf("Your verification code is <b>%v</b>.<br><br>It expires in %v minutes. If you didn't request an email change you can ignore this message.",
		code.Code, int(m.CodeTTL.Minutes()))

	if err := m.Mailer.Send(m.address(req, side), subject, body); err != nil {
		return fmt.Errorf("failed to deliver verification code, %w", err)
	}

	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.VerificationCode{}).
			Where("request_id = ? AND side = ? AND used = false", req.ID, string(side)).
			Updates(map[string]any{
				"used":    true,
				"used_at": time.Now(),
			}).Error; err != nil {
			return err
		}

		return tx.Create(code).Error
	})
}

// Check compares a submitted code against the active one for the request
// side. Wrong, consumed and stale codes all fail the same way so the caller
// can't probe which codes exist.
func (m *MailCodeChannel) Check(ctx context.Context, req *model.EmailChangeRequest, side Side, code string) error {
	var record model.VerificationCode

	err := m.DB.WithContext(ctx).
		Where("request_id = ? AND side = ? AND used = false", req.ID, string(side)).
		Order("created_at desc").
		First(&record).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrCodeMismatch
		}
		return err
	}

	if record.ExpiresAt.Before(time.Now()) {
		return ErrCodeMismatch
	}

	if record.Attempts >= m.MaxAttempts {
		return fmt.Errorf("%w: code attempts exhausted, request a new code", ErrRateLimited)
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		if err := m.DB.WithContext(ctx).Model(&model.VerificationCode{}).
			Where("id = ?", record.ID).
			Update("attempts", gorm.Expr("attempts + 1")).
			Error; err != nil {
			zap.L().Error("Failed to record failed code attempt", zap.Error(err))
		}
		return ErrCodeMismatch
	}

	return m.DB.WithContext(ctx).Model(&model.VerificationCode{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"used":    true,
			"used_at": time.Now(),
		}).Error
}

// Resend reissues the code for the side currently awaiting verification,
// subject to a per-account cooldown. Too many resends block the account for
// a day.
func (m *MailCodeChannel) Resend(ctx context.Context, req *model.EmailChangeRequest, side Side) error {
	now := time.Now()

	var ledger model.ResendRequest
	err := m.DB.WithContext(ctx).
		Where("account_id = ?", req.AccountID).
		First(&ledger).
		Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}

	if ledger.Blocked {
		if now.Before(ledger.Cooldown) {
			return fmt.Errorf("%w: resend limit reached for today", ErrRateLimited)
		}
		ledger.Blocked = false
		ledger.Count = 0
	}

	if now.Before(ledger.Cooldown) {
		return fmt.Errorf("%w: please wait before requesting another code", ErrRateLimited)
	}

	if err := m.Issue(ctx, req, side); err != nil {
		return err
	}

	ledger.AccountID = req.AccountID
	ledger.LastResend = now
	ledger.Count++
	ledger.Cooldown = now.Add(m.ResendCooldown)

	if ledger.Count >= m.MaxResends {
		ledger.Blocked = true
		ledger.Cooldown = now.Add(24 * time.Hour)
	}

	return m.DB.WithContext(ctx).Save(&ledger).Error
}
