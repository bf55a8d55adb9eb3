package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
// Attachment carries the rendered document PDF and may be empty.
type SendEmailPayload struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	HTMLBody   string `json:"html_body"`
	Attachment []byte `json:"attachment,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// Mailer performs the actual delivery. Implemented by notify.Mailer.
type Mailer interface {
	Send(ctx context.Context, payload SendEmailPayload) error
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewSendEmailHandler returns the handler processing TaskTypeSendEmail tasks.
func NewSendEmailHandler(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return mailer.Send(ctx, payload)
	}
}
