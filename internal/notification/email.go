// Package notification emails operators when an ingestion run reports
// sensor failures.
package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/cyclecounts/traffic-pipeline/internal/queue"
	"github.com/cyclecounts/traffic-pipeline/pkg/config"
)

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.SMTPConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// SendRunFailure sends an email summarizing a run with errored sensors.
func (e *EmailNotifier) SendRunFailure(summary *queue.RunSummary) error {
	subject := fmt.Sprintf("Ingestion run had errors - %s (%d sensors failed)",
		summary.Job, summary.SensorsErrored)

	body, err := e.renderFailureTemplate(summary)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) renderFailureTemplate(summary *queue.RunSummary) (string, error) {
	tmpl := `
Ingestion Run Report
====================

Job:             {{.Job}}
Run ID:          {{.RunID}}
Started:         {{.StartedAt}}
Duration:        {{printf "%.1f" .DurationSeconds}}s

Sensors updated: {{.SensorsUpdated}}
Sensors skipped: {{.SensorsSkipped}}
Sensors errored: {{.SensorsErrored}}
Rows written:    {{.RowsWritten}}
Rows pruned:     {{.RowsPruned}}

One or more sensors failed during this run. Failed sensors are retried
automatically on the next scheduled run; investigate if the same sensors
keep failing or the errored count grows.
`

	t, err := template.New("failure").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, summary); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TestConnection verifies the SMTP server is reachable. Returns an error
// when SMTP is not configured so callers can fall back to log-only mode.
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" || e.config.Password == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	return client.Close()
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	if e.config.Username == "" || e.config.Password == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.config.From, e.config.To, subject, body)

	if err := smtp.SendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
