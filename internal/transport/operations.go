package transport

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"courier/internal/logging"
)

type messageResult struct {
	MessageID int64 `json:"message_id"`
	Document  *struct {
		FileID string `json:"file_id"`
	} `json:"document"`
}

func (r messageResult) message() Message {
	msg := Message{ID: r.MessageID}
	if r.Document != nil {
		msg.FileID = r.Document.FileID
	}
	return msg
}

// SendDocument uploads the file at path to the primary chat. A positive
// part/totalParts pair appends the multi-part marker to the caption.
// On success the document is forwarded best-effort to the secondary
// chat when forwarding is enabled.
func (c *Client) SendDocument(ctx context.Context, path, caption string, part, totalParts int) (Message, error) {
	text := EscapeMarkdownV2(caption)
	if part > 0 && totalParts > 0 {
		text += fmt.Sprintf("\n\\(Part %d/%d\\)", part, totalParts)
	}
	if err := c.mediaLimiter.Wait(ctx); err != nil {
		return Message{}, err
	}
	var result messageResult
	err := c.withRetry(ctx, "sendDocument", func(ctx context.Context) error {
		result = messageResult{}
		return c.uploadDocument(ctx, path, text, &result)
	})
	if err != nil {
		return Message{}, err
	}
	msg := result.message()
	c.forwardBestEffort(ctx, msg.ID)
	return msg, nil
}

func (c *Client) uploadDocument(ctx context.Context, path, caption string, out *messageResult) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram sendDocument: open %s: %w", path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeDocumentForm(form, file, filepath.Base(path), c.chatID, caption)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendDocument"), pr)
	if err != nil {
		return fmt.Errorf("telegram sendDocument: new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "sendDocument", out)
}

func writeDocumentForm(form *multipart.Writer, file io.Reader, name string, chatID int64, caption string) error {
	if err := form.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if err := form.WriteField("caption", caption); err != nil {
		return err
	}
	if err := form.WriteField("parse_mode", "MarkdownV2"); err != nil {
		return err
	}
	part, err := form.CreateFormFile("document", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

// SendMessage delivers a text message to the primary chat. The text is
// sent verbatim; callers escape it if it embeds untrusted content.
func (c *Client) SendMessage(ctx context.Context, text string) (Message, error) {
	return c.sendMessageTo(ctx, c.chatID, text)
}

// Broadcast delivers text to the primary chat and, if forwarding is
// enabled, to the secondary chat. A secondary failure is logged and
// never fails the call.
func (c *Client) Broadcast(ctx context.Context, text string) (Message, error) {
	msg, err := c.sendMessageTo(ctx, c.chatID, text)
	if err != nil {
		return Message{}, err
	}
	if c.forwardEnabled {
		if _, err := c.sendMessageTo(ctx, c.forwardChatID, text); err != nil {
			c.logger.Error("failed to deliver message to forward chat",
				logging.Int64("chat_id", c.forwardChatID),
				logging.Error(err))
		}
	}
	return msg, nil
}

func (c *Client) sendMessageTo(ctx context.Context, chatID int64, text string) (Message, error) {
	if err := c.controlLimiter.Wait(ctx); err != nil {
		return Message{}, err
	}
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	}
	var result messageResult
	err := c.withRetry(ctx, "sendMessage", func(ctx context.Context) error {
		result = messageResult{}
		return c.callJSON(ctx, "sendMessage", params, &result)
	})
	if err != nil {
		return Message{}, err
	}
	return result.message(), nil
}

// DeleteMessage removes a previously sent message from the primary chat.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := c.controlLimiter.Wait(ctx); err != nil {
		return err
	}
	params := map[string]any{
		"chat_id":    c.chatID,
		"message_id": messageID,
	}
	return c.withRetry(ctx, "deleteMessage", func(ctx context.Context) error {
		return c.callJSON(ctx, "deleteMessage", params, nil)
	})
}

// forwardBestEffort copies a delivered message to the secondary chat.
// The bot's membership there is checked first; a removed bot
// short-circuits the attempt. All failures are logged only.
func (c *Client) forwardBestEffort(ctx context.Context, messageID int64) {
	if !c.forwardEnabled {
		return
	}
	status, err := c.memberStatus(ctx)
	if err != nil {
		c.logger.Error("failed to check forward chat membership",
			logging.Int64("chat_id", c.forwardChatID),
			logging.Error(err))
		return
	}
	if status == "kicked" || status == "left" {
		c.logger.Error("bot removed from forward chat",
			logging.Int64("chat_id", c.forwardChatID),
			logging.String("status", status))
		return
	}
	if err := c.controlLimiter.Wait(ctx); err != nil {
		return
	}
	params := map[string]any{
		"chat_id":      c.forwardChatID,
		"from_chat_id": c.chatID,
		"message_id":   messageID,
	}
	if err := c.callJSON(ctx, "forwardMessage", params, nil); err != nil {
		c.logger.Error("failed to forward message",
			logging.Int64("chat_id", c.forwardChatID),
			logging.Error(err))
		return
	}
	c.logger.Info("message forwarded", logging.Int64("chat_id", c.forwardChatID))
}

func (c *Client) memberStatus(ctx context.Context) (string, error) {
	var me struct {
		ID int64 `json:"id"`
	}
	if err := c.callJSON(ctx, "getMe", map[string]any{}, &me); err != nil {
		return "", err
	}
	var member struct {
		Status string `json:"status"`
	}
	params := map[string]any{
		"chat_id": c.forwardChatID,
		"user_id": me.ID,
	}
	if err := c.callJSON(ctx, "getChatMember", params, &member); err != nil {
		return "", err
	}
	return member.Status, nil
}

// Verify confirms the token is usable and returns the bot's username.
func (c *Client) Verify(ctx context.Context) (string, error) {
	var me struct {
		Username string `json:"username"`
	}
	if err := c.callJSON(ctx, "getMe", map[string]any{}, &me); err != nil {
		return "", err
	}
	return me.Username, nil
}
