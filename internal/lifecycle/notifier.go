package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/portcullis-nac/portcullis/internal/policy"
)

// Notifier delivers expiry warnings.
type Notifier interface {
	NotifyExpiring(ctx context.Context, cred policy.Credential, daysLeft int) error
}

// Mailer queues an outbound email.
type Mailer interface {
	Mail(ctx context.Context, to, subject, body string) error
}

// EmailNotifier formats warnings and hands them to a Mailer.
type EmailNotifier struct {
	mailer Mailer
}

// NewEmailNotifier wraps mailer.
func NewEmailNotifier(mailer Mailer) *EmailNotifier {
	return &EmailNotifier{mailer: mailer}
}

// NotifyExpiring sends one warning to the credential owner.
func (n *EmailNotifier) NotifyExpiring(ctx context.Context, cred policy.Credential, daysLeft int) error {
	if n == nil || n.mailer == nil {
		return errors.New("lifecycle: mailer not configured")
	}
	if cred.Email == "" {
		return errors.New("lifecycle: credential has no email")
	}
	unit := "days"
	if daysLeft == 1 {
		unit = "day"
	}
	subject := fmt.Sprintf("Your Wi-Fi key expires in %d %s", daysLeft, unit)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\n\nYour network key %q expires in %d %s", cred.Identifier, daysLeft, unit)
	if cred.ExpiresAt != nil {
		fmt.Fprintf(&b, " (%s UTC)", cred.ExpiresAt.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString(".\nAsk your administrator to extend it if you still need access.\n")
	return n.mailer.Mail(ctx, cred.Email, subject, b.String())
}
