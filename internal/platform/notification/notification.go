// Package notification renders appointment messages from templates and hands
// them to a sender. Delivery failures are recorded, never propagated to the
// booking that triggered them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template IDs sent by the booking service.
const (
	TemplateBooked    = "appointment-booked"
	TemplateConfirmed = "appointment-confirmed"
	TemplateCancelled = "appointment-cancelled"
	TemplateCompleted = "appointment-completed"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification is one outbound message.
type Notification struct {
	ID         string            `json:"id"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data,omitempty"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSender writes notifications to the log instead of an external gateway.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, n *Notification) error {
	s.Logger.Info().
		Str("notification_id", n.ID).
		Str("template", n.TemplateID).
		Str("recipient", n.Recipient).
		Str("subject", n.Subject).
		Msg("notification sent")
	return nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine renders {{key}} placeholders.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplateBooked,
			Subject: "Appointment requested",
			Body:    "Your appointment with {{doctor}} on {{date}} at {{time}} has been requested and awaits confirmation.",
		},
		{
			ID:      TemplateConfirmed,
			Subject: "Appointment confirmed",
			Body:    "Your appointment with {{doctor}} on {{date}} at {{time}} is confirmed.",
		},
		{
			ID:      TemplateCancelled,
			Subject: "Appointment cancelled",
			Body:    "Your appointment with {{doctor}} on {{date}} at {{time}} has been cancelled.",
		},
		{
			ID:      TemplateCompleted,
			Subject: "Visit completed",
			Body:    "Your visit with {{doctor}} on {{date}} at {{time}} is marked as completed.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

// Register adds or replaces a template.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into a template. Unknown placeholders are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

var ErrNotFound = errors.New("notification not found")

// Manager renders, sends and remembers notifications.
type Manager struct {
	sender    Sender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu            sync.RWMutex
	notifications map[string]*Notification
}

func NewManager(sender Sender, templates *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		sender:        sender,
		templates:     templates,
		logger:        logger,
		notifications: make(map[string]*Notification),
	}
}

// Notify renders templateID for recipient and sends it. Errors are logged and
// recorded on the notification; the caller's operation is never failed.
func (m *Manager) Notify(ctx context.Context, templateID, recipient string, data map[string]string) *Notification {
	n := &Notification{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		TemplateID: templateID,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}

	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		m.store(n)
		m.logger.Error().Err(err).Str("template", templateID).Msg("render notification")
		return n
	}
	n.Subject, n.Body = subject, body

	m.deliver(ctx, n)
	m.store(n)
	return n
}

func (m *Manager) deliver(ctx context.Context, n *Notification) {
	n.Attempts++
	if err := m.sender.Send(ctx, n); err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		m.logger.Warn().Err(err).Str("notification_id", n.ID).Str("template", n.TemplateID).Msg("notification delivery failed")
		return
	}
	now := time.Now().UTC()
	n.Status = StatusSent
	n.SentAt = &now
	n.Error = ""
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()
}

func (m *Manager) Get(id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListByRecipient returns up to limit notifications for recipient.
func (m *Manager) ListByRecipient(recipient string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	if n.Status != StatusFailed {
		return fmt.Errorf("notification %q is %s, not failed", id, n.Status)
	}
	if n.Subject == "" && n.Body == "" {
		return fmt.Errorf("notification %q was never rendered", id)
	}
	m.deliver(ctx, n)
	if n.Status == StatusFailed {
		return errors.New(n.Error)
	}
	return nil
}

// Stats counts notifications by status.
func (m *Manager) Stats() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[Status]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
