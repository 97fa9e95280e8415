package subscription

import (
	"context"
	"time"

	"github.com/dmitrymomot/studykit/pkg/email"
)

var notificationTemplates = map[Kind]string{
	CheckoutCompleted:   email.TemplateProActivated,
	PaymentFailed:       email.TemplatePaymentFailed,
	SubscriptionDeleted: email.TemplateDowngraded,
}

// EmailNotifier mails the owner on provider-driven changes. Admin actions
// are silent.
type EmailNotifier struct {
	sender email.Sender
	appURL string
}

func NewEmailNotifier(sender email.Sender, appURL string) *EmailNotifier {
	return &EmailNotifier{sender: sender, appURL: appURL}
}

func (n *EmailNotifier) Notify(ctx context.Context, kind Kind, owner Owner) error {
	tmpl, ok := notificationTemplates[kind]
	if !ok || owner.Email == "" {
		return nil
	}

	data := email.TemplateData{Name: owner.Name, AppURL: n.appURL}
	if data.Name == "" {
		data.Name = "there"
	}
	if end := owner.Subscription.End; end != nil {
		data.PeriodEnd = end.Format(time.DateOnly)
	}

	msg, err := email.Render(tmpl, owner.Email, data)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}
