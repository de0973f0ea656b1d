package internal

import (
	"grcadmin/account-api/internal/emailchange"
	"grcadmin/account-api/pkg/security"

	"gorm.io/gorm"
)

type Deps struct {
	DB          *gorm.DB
	Argon       *security.ArgonHash
	Mailer      emailchange.Mailer
	EmailChange *emailchange.Service
	Codes       emailchange.CodeChannel
}
