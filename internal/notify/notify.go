// Package notify sends an operator-facing email when an institution's
// reconciliation run aborts fatally. The original project wires this
// into its run loop via SD Løn's mail relay (sdtoolplus/app.py's
// send_email_notification); this package keeps the same "one narrow
// interface, one SMTP implementation" shape so the suppression-list
// workaround (spec §9 open question 3) has somewhere to live without
// leaking into the run controller.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Notifier sends a hard-failure notification for an institution run.
// Notify must not block the caller for long; implementations should
// apply their own timeout.
type Notifier interface {
	Notify(ctx context.Context, institution, runID string, cause error) error
}

// NoopNotifier discards every notification. It is the default when
// notifications are disabled in configuration.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, string, error) error { return nil }

// SuppressingNotifier wraps a Notifier and drops notifications whose
// failing unit is in a configured suppression list. The list exists
// only to work around a known false-positive source upstream (spec §9
// Q3) and should be removed once that source is fixed.
type SuppressingNotifier struct {
	Next      Notifier
	Suppress  map[string]struct{}
	UnitOfErr func(error) (unitID string, ok bool)
}

func (s SuppressingNotifier) Notify(ctx context.Context, institution, runID string, cause error) error {
	if s.UnitOfErr != nil {
		if unitID, ok := s.UnitOfErr(cause); ok {
			if _, suppressed := s.Suppress[unitID]; suppressed {
				return nil
			}
		}
	}
	return s.Next.Notify(ctx, institution, runID, cause)
}

// SMTPNotifier sends a plain-text notification email over SMTP. It
// dials the configured relay freshly per call rather than holding a
// long-lived connection, since hard failures are rare and the relay is
// expected to be on the local network.
type SMTPNotifier struct {
	Addr string
	From string
	To   []string
}

// NewSMTPNotifier builds an SMTPNotifier from comma-separated
// recipients, trimming whitespace and dropping empty entries.
func NewSMTPNotifier(addr, from, to string) SMTPNotifier {
	var recipients []string
	for _, r := range strings.Split(to, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			recipients = append(recipients, r)
		}
	}
	return SMTPNotifier{Addr: addr, From: from, To: recipients}
}

func (s SMTPNotifier) Notify(ctx context.Context, institution, runID string, cause error) error {
	if len(s.To) == 0 {
		return nil
	}

	subject := fmt.Sprintf("reconcile: %s run %s aborted", institution, runID)
	body := fmt.Sprintf(
		"Institution %s failed reconciliation run %s and left its gate held for operator inspection.\n\nCause:\n%s\n",
		institution, runID, cause,
	)
	msg := buildMessage(s.From, s.To, subject, body)

	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(s.Addr, nil, s.From, s.To, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send notification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
