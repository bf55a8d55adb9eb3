package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/stockroom-wms/stockroom/jobs"
)

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// QueueNotifier hands notifications to the background worker. Implements the
// receipt engine's Notifier port.
type QueueNotifier struct {
	client *jobs.Client
	logger *slog.Logger
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(client *jobs.Client, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, logger: logger}
}

// SendWithAttachment enqueues the message. The boolean reports whether the
// message was accepted for delivery.
func (n *QueueNotifier) SendWithAttachment(ctx context.Context, to, subject, htmlBody string, attachment []byte) (bool, error) {
	info, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:         to,
		Subject:    subject,
		HTMLBody:   htmlBody,
		Attachment: attachment,
		Filename:   "goods-receipt.pdf",
	})
	if err != nil {
		return false, err
	}
	n.logger.Info("confirmation mail queued",
		slog.String("to", to),
		slog.String("task_id", info.ID))
	return true, nil
}
