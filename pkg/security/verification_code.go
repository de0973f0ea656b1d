package security

import (
	"errors"
	"time"

	"grcadmin/account-api/internal/model"
	"grcadmin/account-api/pkg/util"
)

const defaultCodeLength = 6

type VerificationCodeOpts struct {
	AccountID string
	RequestID string
	Side      string
	Length    int
	ExpiresAt *time.Time
}

// MakeVerificationCode builds a fresh numeric code row for one side of an
// email change request. RequestID and Side are empty for initial account
// verification codes.
func MakeVerificationCode(o *VerificationCodeOpts) (*model.VerificationCode, error) {
	if o == nil {
		return nil, errors.New("no code options provided")
	}

	if o.AccountID == "" {
		return nil, errors.New("no account ID provided")
	}

	if o.ExpiresAt == nil {
		return nil, errors.New("no expiry provided")
	}

	length := o.Length
	if length <= 0 {
		length = defaultCodeLength
	}

	code, err := util.GenerateDigits(length)
	if err != nil {
		return nil, err
	}

	return &model.VerificationCode{
		AccountID: o.AccountID,
		RequestID: o.RequestID,
		Side:      o.Side,
		Code:      code,
		ExpiresAt: *o.ExpiresAt,
		CreatedAt: time.Now(),
		Used:      false,
	}, nil
}
