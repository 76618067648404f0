package services

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/travelhub/crm-escalation/db"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type EmailMessage struct {
	To          []db.Recipient
	Subject     string
	TextContent string
	HTMLContent string
}

func (m EmailMessage) HasRecipients() bool {
	return len(m.To) > 0
}

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type SendGridEmailService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

var _ EmailSender = (*SendGridEmailService)(nil)

func NewSendGridEmailService(key, appName, fromEmail string) *SendGridEmailService {
	return &SendGridEmailService{
		key:        key,
		host:       sendgridHost,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

// Send delivers msg to every recipient in one request, each recipient in its own personalization
// so addresses are not disclosed to each other.
func (svc *SendGridEmailService) Send(ctx context.Context, msg EmailMessage) error {
	if !msg.HasRecipients() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid error (status %d): %s", res.StatusCode, res.Body)
	}

	log.Printf("Email: sent %q to %d recipients", msg.Subject, len(msg.To))
	return nil
}

func (svc *SendGridEmailService) prepare(msg EmailMessage) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)

	for _, to := range msg.To {
		p := sgmail.NewPersonalization()
		p.Subject = svc.subjPrefix + msg.Subject
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
		m.AddPersonalizations(p)
	}

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}
