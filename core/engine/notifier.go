package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"picturas-orchestrator/core/models"

	"github.com/google/uuid"
)

// WSQueue is the routing key the websocket gateway consumes from
const WSQueue = "ws_queue"

// Notifier publishes client-visible notifications. All sends are
// best-effort: a lost notification degrades UI feedback, never pipeline
// state.
type Notifier struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewNotifier creates a notifier on top of a publisher
func NewNotifier(publisher Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{publisher: publisher, logger: logger}
}

func processMessageID() string {
	return fmt.Sprintf("update-client-process-%s", uuid.New())
}

func previewMessageID() string {
	return fmt.Sprintf("update-client-preview-%s", uuid.New())
}

func (n *Notifier) send(ctx context.Context, msg models.ClientNotification) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error("notification marshal failed", "message_id", msg.MessageID, "error", err)
		return
	}
	if err := n.publisher.Publish(ctx, WSQueue, body); err != nil {
		n.logger.Error("notification publish failed", "message_id", msg.MessageID, "error", err)
	}
}

// ProcessUpdate signals one successful step completion of a full-pipeline run
func (n *Notifier) ProcessUpdate(ctx context.Context, user string) {
	n.send(ctx, models.ClientNotification{
		MessageID: processMessageID(),
		Status:    "ok",
		User:      user,
	})
}

// ProcessError forwards a worker failure on a full-pipeline run, verbatim
func (n *Notifier) ProcessError(ctx context.Context, user, code, msg string) {
	n.send(ctx, models.ClientNotification{
		MessageID: processMessageID(),
		Status:    "error",
		User:      user,
		ErrorCode: code,
		ErrorMsg:  msg,
	})
}

// ProcessCancelled signals that an image's pipeline was cancelled
func (n *Notifier) ProcessCancelled(ctx context.Context, user string) {
	n.send(ctx, models.ClientNotification{
		MessageID: processMessageID(),
		Status:    "cancelled",
		User:      user,
	})
}

// PreviewReady carries the aggregate preview payload once every image of the
// preview batch has finished
func (n *Notifier) PreviewReady(ctx context.Context, user string, payload models.PreviewPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("preview payload marshal failed", "user", user, "error", err)
		return
	}
	n.send(ctx, models.ClientNotification{
		MessageID: previewMessageID(),
		Status:    "ok",
		User:      user,
		ImgURL:    string(body),
	})
}

// PreviewError forwards a worker failure on a preview run
func (n *Notifier) PreviewError(ctx context.Context, user, code, msg string) {
	n.send(ctx, models.ClientNotification{
		MessageID: previewMessageID(),
		Status:    "error",
		User:      user,
		ErrorCode: code,
		ErrorMsg:  msg,
	})
}

// PreviewCancelled signals that a preview run was cancelled
func (n *Notifier) PreviewCancelled(ctx context.Context, user string) {
	n.send(ctx, models.ClientNotification{
		MessageID: previewMessageID(),
		Status:    "cancelled",
		User:      user,
	})
}
