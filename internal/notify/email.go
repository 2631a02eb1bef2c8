package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/model"
	"github.com/resend/resend-go/v2"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender returns a sender for apiKey.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	return err
}

// RegistrationReader loads a registration with its participants and event.
type RegistrationReader interface {
	GetByID(ctx context.Context, id string) (*model.Registration, error)
}

// EmailLogger stores the audit row for each attempt.
type EmailLogger interface {
	LogEmail(ctx context.Context, l *model.EmailLog) error
}

// EmailNotifier implements Notifier by emailing the registration's leader.
type EmailNotifier struct {
	regs        RegistrationReader
	logs        EmailLogger
	sender      Sender
	from        string
	frontendURL string
}

// NewEmailNotifier returns a notifier. A nil sender disables delivery: every
// Send then reports false so callers retry once email is configured.
func NewEmailNotifier(regs RegistrationReader, logs EmailLogger, sender Sender, from, frontendURL string) *EmailNotifier {
	return &EmailNotifier{regs: regs, logs: logs, sender: sender, from: from, frontendURL: frontendURL}
}

var templates = template.Must(template.New("success").Parse(`<p>Hi {{.Leader}},</p>
<p>Your team <strong>{{.Team}}</strong> is confirmed for <strong>{{.Event}}</strong>.</p>
{{if .Amount}}<p>Amount paid: &#8377;{{.Amount}}{{if .PaymentID}} (payment {{.PaymentID}}){{end}}</p>{{end}}
<p>Registration ID: {{.RegistrationID}}</p>
<ul>{{range .Participants}}<li>{{.FullName}} ({{.Email}}){{if .IsLeader}} - leader{{end}}</li>{{end}}</ul>`))

func init() {
	template.Must(templates.New("failed").Parse(`<p>Hi {{.Leader}},</p>
<p>The payment of &#8377;{{.Amount}} for team <strong>{{.Team}}</strong> ({{.Event}}) did not go through.</p>
<p>This usually happens when the bank declines the transaction, the checkout window is closed early, or the network drops mid-payment. No money is taken for a failed payment; any debit is reversed by your bank.</p>
<p><a href="{{.URL}}">Try again</a></p>
<p>Registration ID: {{.RegistrationID}}</p>`))
	template.Must(templates.New("reminder").Parse(`<p>Hi {{.Leader}},</p>
<p>Your registration for <strong>{{.Event}}</strong> (team {{.Team}}) is waiting for payment of &#8377;{{.Amount}}.</p>
<p><a href="{{.URL}}">Complete your registration</a></p>
<p>Registration ID: {{.RegistrationID}}</p>`))
}

type emailData struct {
	Leader         string
	Team           string
	Event          string
	Amount         int
	PaymentID      string
	RegistrationID string
	URL            string
	Participants   []model.Participant
}

func subjectFor(kind model.NotificationKind, event string) (string, error) {
	switch kind {
	case model.NotifySuccess:
		return "Registration Confirmed: " + event, nil
	case model.NotifyFailed:
		return "Payment Failed: " + event, nil
	case model.NotifyReminder:
		return "Complete Your Registration: " + event, nil
	}
	return "", fmt.Errorf("unknown notification kind %q", kind)
}

// Send implements Notifier.
func (n *EmailNotifier) Send(ctx context.Context, kind model.NotificationKind, registrationID string) bool {
	if n.sender == nil {
		log.Printf("[EMAIL] delivery disabled, %s email for %s not sent", kind, registrationID)
		return false
	}

	reg, err := n.regs.GetByID(ctx, registrationID)
	if err != nil {
		log.Printf("[EMAIL] load registration %s: %v", registrationID, err)
		return false
	}
	leader := reg.Leader()
	if leader == nil {
		log.Printf("[EMAIL] registration %s has no leader", registrationID)
		return false
	}

	data := emailData{
		Leader:         leader.FullName,
		Team:           reg.TeamName,
		Amount:         reg.Amount,
		RegistrationID: reg.ID,
		Participants:   reg.Participants,
	}
	if reg.Event != nil {
		data.Event = reg.Event.Title
		data.URL = n.frontendURL + "/register/" + reg.Event.Slug
	}
	if reg.RazorpayPaymentID != nil {
		data.PaymentID = *reg.RazorpayPaymentID
	}

	subject, err := subjectFor(kind, data.Event)
	if err != nil {
		log.Printf("[EMAIL] %v", err)
		return false
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, string(kind), data); err != nil {
		log.Printf("[EMAIL] render %s for %s: %v", kind, registrationID, err)
		return false
	}

	sendErr := n.sender.Send(ctx, Message{From: n.from, To: leader.Email, Subject: subject, HTML: body.String()})

	entry := &model.EmailLog{
		RegistrationID: &reg.ID,
		ToEmail:        leader.Email,
		Type:           string(kind),
		Subject:        subject,
		Status:         "SENT",
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Status = "FAILED"
		entry.Error = &msg
	}
	if err := n.logs.LogEmail(ctx, entry); err != nil {
		log.Printf("[EMAIL] write email log: %v", err)
	}

	if sendErr != nil {
		log.Printf("[EMAIL] send %s to %s failed: %v", kind, leader.Email, sendErr)
		return false
	}
	log.Printf("[EMAIL] %s email sent to %s for %s", kind, leader.Email, registrationID)
	return true
}
