package notifications

import (
	"context"
	"log/slog"
	"strings"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Recorder receives one call per attempted email.
type Recorder interface {
	EmailResult(event string, err error)
}

type Service struct {
	Mailer     Mailer
	From       string
	Recipients []string
	Recorder   Recorder
}

// New sends events to the comma separated addresses in notifyTo.
func New(mailer Mailer, from, notifyTo string) *Service {
	var recipients []string
	for _, addr := range strings.Split(notifyTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{Mailer: mailer, From: from, Recipients: recipients}
}

// Notify renders event and mails every recipient. Delivery failures are
// logged and never fail the caller's operation.
func (s *Service) Notify(ctx context.Context, event EventType, data map[string]any) {
	if s == nil || s.Mailer == nil || len(s.Recipients) == 0 {
		return
	}
	subject, body, err := Render(event, data)
	if err != nil {
		slog.Warn("notification render failed", "event", event, "err", err)
		return
	}
	for _, to := range s.Recipients {
		err := s.Mailer.Send(ctx, s.From, to, subject, body)
		if s.Recorder != nil {
			s.Recorder.EmailResult(string(event), err)
		}
		if err != nil {
			slog.Warn("notification email send failed", "event", event, "to", to, "err", err)
		}
	}
}
