package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/parishdesk/parishdesk/jobs"
)

// Sender delivers account notifications. Delivery is best effort
// everywhere it is called: failures are logged and never propagate into
// the calling operation's result.
type Sender interface {
	WelcomeAccount(ctx context.Context, email, name string)
}

// Mailer enqueues notification emails onto the background queue. It must
// be initialized before use and shut down when the process stops.
type Mailer struct {
	logger *slog.Logger
	opts   asynq.RedisClientOpt

	mu     sync.Mutex
	client *jobs.Client
}

// NewMailer constructs an uninitialized Mailer.
func NewMailer(logger *slog.Logger, opts asynq.RedisClientOpt) *Mailer {
	return &Mailer{logger: logger, opts: opts}
}

// Init opens the queue connection. Calling any send method before Init
// logs and drops the notification.
func (m *Mailer) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}
	client, err := jobs.NewClient(m.opts)
	if err != nil {
		return fmt.Errorf("notify: init mail client: %w", err)
	}
	m.client = client
	return nil
}

// Shutdown releases the queue connection.
func (m *Mailer) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// WelcomeAccount enqueues the welcome email for a freshly provisioned
// account. Enqueue failures are logged and swallowed; provisioning has
// already committed by the time this runs.
func (m *Mailer) WelcomeAccount(ctx context.Context, email, name string) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		m.logger.Warn("welcome notification dropped, mailer not initialized", slog.String("email", email))
		return
	}
	_, err := client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: "Welcome to ParishDesk",
		Body:    fmt.Sprintf("Hello %s, your account is ready.", name),
	})
	if err != nil {
		m.logger.Warn("welcome notification failed", slog.String("email", email), slog.Any("error", err))
	}
}

// NopSender discards notifications. Used in tests and when the queue is
// disabled.
type NopSender struct{}

func (NopSender) WelcomeAccount(context.Context, string, string) {}
