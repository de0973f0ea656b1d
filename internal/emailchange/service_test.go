package emailchange

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"grcadmin/account-api/db"
	"grcadmin/account-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// recordingMailer satisfies Mailer and keeps everything it was asked to
// deliver so tests can assert on recipients.
type recordingMailer struct {
	Mails []sentMail
	Fail  bool
}

func (r *recordingMailer) Send(to, subject, body string) error {
	if r.Fail {
		return fmt.Errorf("smtp relay unavailable")
	}

	r.Mails = append(r.Mails, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (r *recordingMailer) lastTo() string {
	if len(r.Mails) == 0 {
		return ""
	}
	return r.Mails[len(r.Mails)-1].To
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%v?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))

	d, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d))

	return d
}

type fixture struct {
	db     *gorm.DB
	mailer *recordingMailer
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	d := newTestDB(t)
	mailer := &recordingMailer{}

	channel := &MailCodeChannel{
		DB:             d,
		Mailer:         mailer,
		CodeLength:     6,
		CodeTTL:        30 * time.Minute,
		MaxAttempts:    3,
		ResendCooldown: time.Minute,
		MaxResends:     3,
	}

	return &fixture{
		db:     d,
		mailer: mailer,
		svc:    NewService(d, channel, 24*time.Hour),
	}
}

func (f *fixture) createUser(t *testing.T, id, email string) {
	t.Helper()

	require.NoError(t, f.db.Create(&model.User{
		ID:           id,
		Email:        email,
		PasswordHash: "x",
		Verified:     true,
	}).Error)
}

// codeFor reads the live code for one side straight out of the store, the
// same digits the mailer delivered.
func (f *fixture) codeFor(t *testing.T, requestID string, side Side) string {
	t.Helper()

	var record model.VerificationCode
	require.NoError(t, f.db.
		Where("request_id = ? AND side = ? AND used = false", requestID, string(side)).
		Order("created_at desc").
		First(&record).
		Error)

	return record.Code
}

func (f *fixture) reload(t *testing.T, requestID string) *model.EmailChangeRequest {
	t.Helper()

	var req model.EmailChangeRequest
	require.NoError(t, f.db.Where("id = ?", requestID).First(&req).Error)

	return &req
}

func (f *fixture) forceExpiry(t *testing.T, requestID string) {
	t.Helper()

	require.NoError(t, f.db.Model(&model.EmailChangeRequest{}).
		Where("id = ?", requestID).
		Update("expires_at", time.Now().Add(-time.Minute)).
		Error)
}

func (f *fixture) forceStatus(t *testing.T, requestID string, status model.RequestStatus) {
	t.Helper()

	require.NoError(t, f.db.Model(&model.EmailChangeRequest{}).
		Where("id = ?", requestID).
		Update("status", status).
		Error)
}

func TestRequestChange(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed addresses", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		_, err := f.svc.RequestChange(ctx, "acc1", "not-an-email")
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("rejects the current address", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		_, err := f.svc.RequestChange(ctx, "acc1", "OLD@x.com")
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("rejects unknown accounts", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.RequestChange(ctx, "ghost", "new@y.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("creates a pending request and mails the old mailbox", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		assert.Equal(t, model.StatusPending, req.Status)
		assert.Equal(t, "old@x.com", req.OldEmail)
		assert.Equal(t, "new@y.com", req.NewEmail)
		assert.True(t, req.ExpiresAt.After(time.Now()))
		assert.Equal(t, "old@x.com", f.mailer.lastTo())
	})

	t.Run("only one active request per account", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		_, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		_, err = f.svc.RequestChange(ctx, "acc1", "other@z.com")
		assert.ErrorIs(t, err, ErrAlreadyActive)
	})

	t.Run("the storage index rejects a racing insert", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		// Bypass the service entirely, the way a lost race would
		err = f.db.Create(&model.EmailChangeRequest{
			ID:        "race",
			AccountID: "acc1",
			OldEmail:  req.OldEmail,
			NewEmail:  "race@z.com",
			Status:    model.StatusPending,
			ExpiresAt: time.Now().Add(time.Hour),
		}).Error
		assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	})

	t.Run("rolls back when the code can't be delivered", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")
		f.mailer.Fail = true

		_, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.Error(t, err)

		var count int64
		require.NoError(t, f.db.Model(&model.EmailChangeRequest{}).Count(&count).Error)
		assert.Zero(t, count)

		// The slot is free again
		f.mailer.Fail = false
		_, err = f.svc.RequestChange(ctx, "acc1", "new@y.com")
		assert.NoError(t, err)
	})

	t.Run("retires a timed out predecessor", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		stale, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)
		f.forceExpiry(t, stale.ID)

		fresh, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		assert.Equal(t, model.StatusExpired, f.reload(t, stale.ID).Status)
		assert.Equal(t, model.StatusPending, f.reload(t, fresh.ID).Status)
	})
}

func TestVerificationOrdering(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.createUser(t, "acc1", "old@x.com")

	req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
	require.NoError(t, err)

	oldCode := f.codeFor(t, req.ID, SideOld)

	// The new side can't be verified first, not even with a valid code
	_, err = f.svc.VerifyNewEmail(ctx, "acc1", req.ID, oldCode)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, model.StatusPending, f.reload(t, req.ID).Status)

	// And the old side can't be verified twice
	_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
	require.NoError(t, err)
	_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFullFlow(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.createUser(t, "acc1", "old@x.com")

	req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
	require.NoError(t, err)

	// Wrong code leaves the request where it was
	_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, "000000")
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.Equal(t, model.StatusPending, f.reload(t, req.ID).Status)

	oldCode := f.codeFor(t, req.ID, SideOld)

	got, err := f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOldVerified, got.Status)
	assert.Equal(t, "new@y.com", f.mailer.lastTo())

	// Submitting the old side's (now consumed) code for the new side fails
	_, err = f.svc.VerifyNewEmail(ctx, "acc1", req.ID, oldCode)
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.Equal(t, model.StatusOldVerified, f.reload(t, req.ID).Status)

	newCode := f.codeFor(t, req.ID, SideNew)

	got, err = f.svc.VerifyNewEmail(ctx, "acc1", req.ID, newCode)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNewVerified, got.Status)

	got, err = f.svc.CompleteChange(ctx, "acc1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	var u model.User
	require.NoError(t, f.db.Where("id = ?", "acc1").First(&u).Error)
	assert.Equal(t, "new@y.com", u.Email)

	// Every further call against the finished request is rejected
	_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = f.svc.CompleteChange(ctx, "acc1", req.ID)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = f.svc.CancelChange(ctx, "acc1", req.ID)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	history, err := f.svc.History(ctx, "acc1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "old@x.com", history[0].OldEmail)
}

func TestAbsoluteExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("a valid code can't rescue a timed out request", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		oldCode := f.codeFor(t, req.ID, SideOld)
		f.forceExpiry(t, req.ID)

		_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
		assert.ErrorIs(t, err, ErrExpired)

		// The mutating call persisted what time already decided
		assert.Equal(t, model.StatusExpired, f.reload(t, req.ID).Status)
	})

	t.Run("every mutating operation rejects a timed out request", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)
		f.forceStatus(t, req.ID, model.StatusNewVerified)
		f.forceExpiry(t, req.ID)

		_, err = f.svc.CompleteChange(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrExpired)

		err = f.svc.ResendCode(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrExpired)

		var u model.User
		require.NoError(t, f.db.Where("id = ?", "acc1").First(&u).Error)
		assert.Equal(t, "old@x.com", u.Email)
	})

	t.Run("a stored expired status still reads as expired", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		// Once the sweep (or an earlier call) writes the status down, the
		// rejection reason must not degrade to "already finished".
		f.forceStatus(t, req.ID, model.StatusExpired)

		_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, "000000")
		assert.ErrorIs(t, err, ErrExpired)

		_, err = f.svc.VerifyNewEmail(ctx, "acc1", req.ID, "000000")
		assert.ErrorIs(t, err, ErrExpired)

		_, err = f.svc.CompleteChange(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrExpired)

		_, err = f.svc.CancelChange(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrExpired)

		err = f.svc.ResendCode(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("status reads report expiry without writing", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)
		f.forceExpiry(t, req.ID)

		proj, err := f.svc.GetStatus(ctx, "acc1")
		require.NoError(t, err)
		assert.False(t, proj.HasActiveRequest)
		require.NotNil(t, proj.Request)
		assert.Equal(t, model.StatusExpired, proj.Request.Status)

		// The stored row is untouched, expiry was computed
		assert.Equal(t, model.StatusPending, f.reload(t, req.ID).Status)
	})
}

func TestCancelChange(t *testing.T) {
	ctx := context.Background()

	for _, status := range model.ActiveStatuses {
		t.Run("cancels from "+string(status), func(t *testing.T) {
			f := newFixture(t)
			f.createUser(t, "acc1", "old@x.com")

			req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
			require.NoError(t, err)
			f.forceStatus(t, req.ID, status)

			got, err := f.svc.CancelChange(ctx, "acc1", req.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, got.Status)
			assert.Equal(t, model.StatusCancelled, f.reload(t, req.ID).Status)
		})
	}

	for status, want := range map[model.RequestStatus]error{
		model.StatusCompleted: ErrAlreadyTerminal,
		model.StatusCancelled: ErrAlreadyTerminal,
		model.StatusExpired:   ErrExpired,
	} {
		t.Run("refuses from "+string(status), func(t *testing.T) {
			f := newFixture(t)
			f.createUser(t, "acc1", "old@x.com")

			req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
			require.NoError(t, err)
			f.forceStatus(t, req.ID, status)

			_, err = f.svc.CancelChange(ctx, "acc1", req.ID)
			assert.ErrorIs(t, err, want)
		})
	}

	t.Run("rejects foreign requests", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")
		f.createUser(t, "acc2", "other@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		_, err = f.svc.CancelChange(ctx, "acc2", req.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCompleteChangeAtomicity(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.createUser(t, "acc1", "old@x.com")

	req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
	require.NoError(t, err)
	f.forceStatus(t, req.ID, model.StatusNewVerified)

	// Someone changed the account email underneath the request. The swap
	// must not apply, and the rollback must also undo the status change.
	require.NoError(t, f.db.Model(&model.User{}).
		Where("id = ?", "acc1").
		Update("email", "drifted@x.com").
		Error)

	_, err = f.svc.CompleteChange(ctx, "acc1", req.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, model.StatusNewVerified, f.reload(t, req.ID).Status)

	var u model.User
	require.NoError(t, f.db.Where("id = ?", "acc1").First(&u).Error)
	assert.Equal(t, "drifted@x.com", u.Email)
}

func TestResendCode(t *testing.T) {
	ctx := context.Background()

	t.Run("resends the side awaiting verification", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		require.NoError(t, f.svc.ResendCode(ctx, "acc1", req.ID))
		assert.Equal(t, "old@x.com", f.mailer.lastTo())

		f.forceStatus(t, req.ID, model.StatusOldVerified)
		// Ledger cooldown from the first resend is still running
		err = f.svc.ResendCode(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("a fresh resend invalidates the previous code", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		first := f.codeFor(t, req.ID, SideOld)
		require.NoError(t, f.svc.ResendCode(ctx, "acc1", req.ID))
		second := f.codeFor(t, req.ID, SideOld)

		if first != second {
			_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, first)
			assert.ErrorIs(t, err, ErrCodeMismatch)
		}

		got, err := f.svc.VerifyOldEmail(ctx, "acc1", req.ID, second)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOldVerified, got.Status)
	})

	t.Run("no resend once both sides are verified", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)
		f.forceStatus(t, req.ID, model.StatusNewVerified)

		err = f.svc.ResendCode(ctx, "acc1", req.ID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestAttemptCap(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	f.createUser(t, "acc1", "old@x.com")

	req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
	require.NoError(t, err)

	oldCode := f.codeFor(t, req.ID, SideOld)

	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, "999999")
		assert.ErrorIs(t, err, ErrCodeMismatch)
	}

	// Burned through the attempts, even the right code is refused now
	_, err = f.svc.VerifyOldEmail(ctx, "acc1", req.ID, oldCode)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, model.StatusPending, f.reload(t, req.ID).Status)
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no active request", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		proj, err := f.svc.GetStatus(ctx, "acc1")
		require.NoError(t, err)
		assert.False(t, proj.HasActiveRequest)
		assert.Nil(t, proj.Request)
	})

	t.Run("projects the running request onto its wizard step", func(t *testing.T) {
		f := newFixture(t)
		f.createUser(t, "acc1", "old@x.com")

		req, err := f.svc.RequestChange(ctx, "acc1", "new@y.com")
		require.NoError(t, err)

		proj, err := f.svc.GetStatus(ctx, "acc1")
		require.NoError(t, err)
		require.True(t, proj.HasActiveRequest)
		assert.Equal(t, req.ID, proj.Request.ID)
		assert.Equal(t, 1, proj.Request.Step)

		f.forceStatus(t, req.ID, model.StatusOldVerified)
		proj, err = f.svc.GetStatus(ctx, "acc1")
		require.NoError(t, err)
		assert.Equal(t, 2, proj.Request.Step)

		f.forceStatus(t, req.ID, model.StatusNewVerified)
		proj, err = f.svc.GetStatus(ctx, "acc1")
		require.NoError(t, err)
		assert.Equal(t, 3, proj.Request.Step)
	})
}
