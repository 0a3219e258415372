package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSweepExpired is the task type for the assignment expiry sweep.
	TaskTypeSweepExpired = "rbac:sweep_expired"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP/Mailpit in phase 2.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}

// NewSweepExpiredTask constructs the periodic assignment expiry sweep task.
func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepExpired, nil)
}

// ExpirySweeper deactivates role assignments and overrides whose
// expiry has passed.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// NewSweepExpiredHandler builds the handler for TaskTypeSweepExpired.
// The sweep is cosmetic: the permission resolver already ignores expired
// rows, this keeps the stored status column in line with reality.
func NewSweepExpiredHandler(sweeper ExpirySweeper) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := sweeper.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweep expired assignments: %w", err)
		}
		if n > 0 {
			fmt.Printf("[jobs] deactivated %d expired assignments\n", n)
		}
		return nil
	}
}
