package transport

import (
	"context"
	"fmt"
	"path/filepath"

	"courier/internal/logging"
)

// NotifyFailure posts a visible error notice for a path that exhausted
// its delivery attempts. At most one notice exists per path; repeated
// failures before a success do not post again. The notice's message id
// is remembered so RetractFailure can delete it later.
func (c *Client) NotifyFailure(ctx context.Context, path string) {
	c.mu.Lock()
	_, exists := c.pendingErrors[path]
	c.mu.Unlock()
	if exists {
		return
	}
	text := fmt.Sprintf("Error sending file: %s\\. Check logs\\.", EscapeMarkdownV2(filepath.Base(path)))
	msg, err := c.SendMessage(ctx, text)
	if err != nil {
		c.logger.Error("failed to post error notice",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	c.mu.Lock()
	c.pendingErrors[path] = msg.ID
	c.mu.Unlock()
}

// RetractFailure deletes the error notice for a path after a later
// success. A delete failure is logged and the reference dropped anyway
// so a stale notice never blocks future retraction attempts.
func (c *Client) RetractFailure(ctx context.Context, path string) {
	c.mu.Lock()
	messageID, exists := c.pendingErrors[path]
	if exists {
		delete(c.pendingErrors, path)
	}
	c.mu.Unlock()
	if !exists {
		return
	}
	if err := c.DeleteMessage(ctx, messageID); err != nil {
		c.logger.Warn("failed to retract error notice",
			logging.String("path", path),
			logging.Int64("message_id", messageID),
			logging.Error(err))
		return
	}
	c.logger.Info("error notice retracted", logging.String("path", path))
}

// PendingFailures reports how many error notices are currently live.
func (c *Client) PendingFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingErrors)
}
