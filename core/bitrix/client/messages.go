package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/bitrixbot/core/bitrix/commands"
	"github.com/m3rciful/bitrixbot/core/bitrix/event"
	"github.com/m3rciful/bitrixbot/core/logger"
)

// REST methods used by the facade.
const (
	MethodMessageAdd      = "imbot.message.add"
	MethodMessageUpdate   = "imbot.message.update"
	MethodMessageDelete   = "imbot.message.delete"
	MethodCommandAnswer   = "imbot.command.answer"
	MethodCommandRegister = "imbot.command.register"
	MethodRegister        = "imbot.register"
)

// DialogID renders a chat id as a DIALOG_ID: negative ids are group chats.
func DialogID(chatID int64) string {
	return event.FormatDialogID(chatID)
}

// Message is a new bot message.
type Message struct {
	DialogID string
	Text     string
	Attach   Paramer
	Keyboard Paramer
	// URLPreview disables link previews when false.
	URLPreview *bool
}

// SendMessage posts a message and returns its id.
func (c *Client) SendMessage(ctx context.Context, msg Message) (int64, error) {
	if strings.TrimSpace(msg.DialogID) == "" {
		return 0, clientError(ErrInvalidRequest, "send message: DIALOG_ID is required", nil, nil)
	}
	params := map[string]any{
		"BOT_ID":    c.cfg.BotID,
		"DIALOG_ID": msg.DialogID,
		"MESSAGE":   msg.Text,
		"ATTACH":    paramOrEmpty(msg.Attach),
	}
	if present(msg.Keyboard) {
		params["KEYBOARD"] = msg.Keyboard
	}
	if msg.URLPreview != nil {
		params["URL_PREVIEW"] = *msg.URLPreview
	}
	resp, err := c.Call(ctx, MethodMessageAdd, params)
	if err != nil {
		return 0, err
	}
	return resp.ResultInt(), nil
}

// Update rewrites an existing message. DialogID and MessageID default to
// the ones carried by Event. A nil Attach or Keyboard clears it.
type Update struct {
	Event     event.Event
	DialogID  string
	MessageID int64
	Text      string
	Attach    Paramer
	Keyboard  Paramer
}

// UpdateMessage applies u with imbot.message.update.
func (c *Client) UpdateMessage(ctx context.Context, u Update) error {
	params, err := c.updateParams(u)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, MethodMessageUpdate, params)
	return err
}

// UpdateMessageAsync validates u and queues the update on the sender queue.
// Only request errors are returned; delivery failures are logged by the queue.
func (c *Client) UpdateMessageAsync(ctx context.Context, u Update) error {
	params, err := c.updateParams(u)
	if err != nil {
		return err
	}
	return c.CallAsync(ctx, MethodMessageUpdate, params)
}

func (c *Client) updateParams(u Update) (map[string]any, error) {
	dialog := strings.TrimSpace(u.DialogID)
	if dialog == "" {
		dialog = u.Event.DialogID()
	}
	messageID := u.MessageID
	if messageID == 0 {
		messageID = u.Event.MessageID()
	}
	if messageID == 0 {
		return nil, clientError(ErrInvalidRequest, "update message: MESSAGE_ID is required", nil, nil)
	}
	params := map[string]any{
		"BOT_ID":     c.cfg.BotID,
		"MESSAGE_ID": messageID,
		"MESSAGE":    u.Text,
		"ATTACH":     paramOrEmpty(u.Attach),
		"KEYBOARD":   paramOrEmpty(u.Keyboard),
	}
	if dialog != "" {
		params["DIALOG_ID"] = dialog
	}
	return params, nil
}

// DeleteMessage removes a bot message. complete also removes it from the history of every participant.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64, complete bool) error {
	if messageID == 0 {
		return clientError(ErrInvalidRequest, "delete message: MESSAGE_ID is required", nil, nil)
	}
	_, err := c.Call(ctx, MethodMessageDelete, map[string]any{
		"BOT_ID":     c.cfg.BotID,
		"MESSAGE_ID": messageID,
		"COMPLETE":   complete,
	})
	return err
}

// Answer is the reply to a command invocation.
type Answer struct {
	Text     string
	Attach   Paramer
	Keyboard Paramer
}

// AnswerCommand replies to the command carried by ev and returns the new message id.
func (c *Client) AnswerCommand(ctx context.Context, ev event.Event, a Answer) (int64, error) {
	if !ev.IsCommand() {
		return 0, clientError(ErrInvalidRequest, "answer command: event is not a command", nil, nil)
	}
	params := map[string]any{
		"BOT_ID":     c.cfg.BotID,
		"COMMAND":    ev.CommandName(),
		"MESSAGE_ID": ev.MessageID(),
		"MESSAGE":    a.Text,
	}
	if id := ev.CommandID(); id != "" {
		params["COMMAND_ID"] = id
	}
	if present(a.Attach) {
		params["ATTACH"] = a.Attach
	}
	if present(a.Keyboard) {
		params["KEYBOARD"] = a.Keyboard
	}
	resp, err := c.Call(ctx, MethodCommandAnswer, params)
	if err != nil {
		return 0, err
	}
	return resp.ResultInt(), nil
}

// RegisterCommands registers every command and returns the ids the portal
// assigned, keyed by command name. Invalid or failed commands are skipped
// and reported together.
func (c *Client) RegisterCommands(ctx context.Context, cmds []commands.Command) (map[string]int64, error) {
	ids := make(map[string]int64, len(cmds))
	var errs []error
	for _, raw := range cmds {
		cmd := raw.Normalize(c.cfg.EventURL)
		if err := cmd.Validate(); err != nil {
			logger.Warn(ctx, "bx.wire", "register.command.skip",
				slog.String("status", "skip"),
				slog.String("command", cmd.Command),
				slog.String("cause", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		resp, err := c.Call(ctx, MethodCommandRegister, commandParams(c.cfg, cmd))
		if err != nil {
			logger.Error(ctx, "bx.wire", "register.command",
				slog.String("status", "fail"),
				slog.String("command", cmd.Command),
				slog.String("err", err.Error()),
				slog.String("err_code", ErrorCode(err)),
			)
			errs = append(errs, err)
			continue
		}
		ids[cmd.Command] = resp.ResultInt()
		logger.Info(ctx, "bx.wire", "register.command",
			slog.String("status", "ok"),
			slog.String("command", cmd.Command),
			slog.Int64("count", resp.ResultInt()),
		)
	}
	return ids, errors.Join(errs...)
}

func commandParams(cfg Config, cmd commands.Command) map[string]any {
	return map[string]any{
		"BOT_ID":           cfg.BotID,
		"COMMAND":          cmd.Command,
		"COMMON":           true,
		"HIDDEN":           !cmd.Visible,
		"EXTRANET_SUPPORT": cmd.ExtranetSupport,
		"CLIENT_ID":        cfg.Token,
		"LANG": []any{map[string]any{
			"LANGUAGE_ID": cmd.Language,
			"TITLE":       cmd.Title,
			"PARAMS":      cmd.Params,
		}},
		"EVENT_COMMAND_ADD": cmd.EventCommandAdd,
	}
}

// SetWebhook points the bot's event handler at url.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return clientError(ErrInvalidRequest, "set webhook: EVENT_HANDLER is required", nil, nil)
	}
	_, err := c.Call(ctx, MethodRegister, map[string]any{"EVENT_HANDLER": url})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	logger.Info(ctx, "bx.wire", "register.webhook",
		slog.String("status", "ok"),
		slog.String("public_url", url),
	)
	return nil
}

func paramOrEmpty(p Paramer) any {
	if present(p) {
		return p
	}
	return ""
}
