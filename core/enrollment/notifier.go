package enrollment

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/learner"
)

const (
	credentialsTemplate = "learner_credentials"
	rejectionTemplate   = "enrollment_rejected"
)

type (
	// CredentialNotifier delivers the credentials of a newly provisioned account.
	// It is called once per provisioning, after commit.
	CredentialNotifier interface {
		Deliver(ctx context.Context, email, firstName, lastName, username, tempPassword string) error
	}

	// RejectionNotifier tells a learner their enrollment was rejected. Best effort.
	RejectionNotifier interface {
		NotifyRejected(l learner.Learner)
	}
)

// MailNotifier sends enrollment emails through a core.EmailService.
type MailNotifier struct {
	mailer core.EmailService
	conf   *core.Config
}

var (
	_ CredentialNotifier = (*MailNotifier)(nil)
	_ RejectionNotifier  = (*MailNotifier)(nil)
)

func NewMailNotifier(mailer core.EmailService, conf *core.Config) *MailNotifier {
	return &MailNotifier{mailer: mailer, conf: conf}
}

type credentialsData struct {
	FirstName, LastName string
	Username            string
	TempPassword        string
	LoginURL            string
}

type rejectionData struct {
	FirstName, LastName string
	Program             string
}

func recipient(firstName, lastName, email string) mail.Address {
	return mail.Address{Name: core.CleanString(firstName + " " + lastName), Address: email}
}

func (n *MailNotifier) Deliver(ctx context.Context, email, firstName, lastName, username, tempPassword string) error {
	return n.mailer.SendMessage(ctx, &core.EmailMessage{
		To:           []mail.Address{recipient(firstName, lastName, email)},
		Subject:      fmt.Sprintf("Your %s learner account", n.conf.AppName),
		TemplateName: credentialsTemplate,
		TemplateData: credentialsData{
			FirstName:    firstName,
			LastName:     lastName,
			Username:     username,
			TempPassword: tempPassword,
			LoginURL:     n.conf.LoginURL(),
		},
	})
}

// NotifyRejected sends the rejection notice in the background; learners without an email are skipped.
func (n *MailNotifier) NotifyRejected(l learner.Learner) {
	email := l.ContactEmail()
	if email == "" {
		return
	}
	n.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{recipient(l.FirstName, l.LastName, email)},
		Subject:      fmt.Sprintf("Your %s application", n.conf.AppName),
		TemplateName: rejectionTemplate,
		TemplateData: rejectionData{FirstName: l.FirstName, LastName: l.LastName, Program: l.Program},
	})
}
