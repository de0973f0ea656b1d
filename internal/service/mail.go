// Package service holds the collaborators the workflow core delegates to:
// SMTP delivery and the periodic store sweeps.
package service

import (
	"errors"

	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// GomailSender delivers mail through the SMTP relay configured under the
// mail.* keys. Implements emailchange.Mailer.
type GomailSender struct {
	Host     string
	Port     int
	Sender   string
	Password string
}

func NewGomailSender() *GomailSender {
	return &GomailSender{
		Host:     viper.GetString("mail.host"),
		Port:     viper.GetInt("mail.port"),
		Sender:   viper.GetString("mail.sender"),
		Password: viper.GetString("mail.password"),
	}
}

func (g *GomailSender) Send(to, subject, body string) error {
	if to == g.Sender {
		return errors.New("invalid email address")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", g.Sender)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(g.Host, g.Port, g.Sender, g.Password)

	return d.DialAndSend(m)
}
