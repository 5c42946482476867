// Telegram Bot API client.
//
// This file implements the Channel contract against api.telegram.org using
// two endpoints only: sendMessage for the outbound side and getUpdates for
// the inbound long-poll. The full bot protocol is deliberately out of scope;
// everything the correlation engine needs fits in these two calls.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production Telegram Bot API endpoint. Tests point
// the client at an httptest server instead.
const DefaultBaseURL = "https://api.telegram.org"

// TelegramClient is a thin wrapper over the Telegram Bot API implementing
// the Channel interface for a single bot token and destination chat.
type TelegramClient struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramClient constructs a client for the given bot token and
// destination chat id. The HTTP client timeout leaves headroom above the
// longest getUpdates long-poll the poller issues.
func NewTelegramClient(token, chatID string) *TelegramClient {
	return &TelegramClient{
		baseURL: DefaultBaseURL,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 65 * time.Second},
	}
}

// NewTelegramClientWithBase is NewTelegramClient with an overridable API
// base URL, used by tests.
func NewTelegramClientWithBase(baseURL, token, chatID string) *TelegramClient {
	c := NewTelegramClient(token, chatID)
	c.baseURL = baseURL
	return c
}

// ChatID returns the configured destination chat id. The correlator uses it
// to decide fallback matches (sender == destination).
func (c *TelegramClient) ChatID() string { return c.chatID }

// apiEnvelope is the common Bot API response wrapper.
type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// tgMessage mirrors the subset of the Message object we consume.
type tgMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text           string     `json:"text"`
	ReplyToMessage *tgMessage `json:"reply_to_message"`
}

// tgUpdate mirrors the subset of the Update object we consume.
type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

// Send posts text to the configured chat and returns Telegram's message id.
func (c *TelegramClient) Send(ctx context.Context, text string) (int64, error) {
	var msg tgMessage
	err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": c.chatID,
		"text":    text,
	}, &msg)
	if err != nil {
		return 0, err
	}
	log.Debug().Int64("message_id", msg.MessageID).Msg("telegram message sent")
	return msg.MessageID, nil
}

// Fetch long-polls getUpdates after cur for up to wait and converts the
// result to transport-neutral Updates. Updates without a text message are
// consumed (the cursor still advances past them) but not returned.
func (c *TelegramClient) Fetch(ctx context.Context, cur Cursor, wait time.Duration) ([]Update, Cursor, error) {
	body := map[string]any{
		"timeout": int(wait.Seconds()),
	}
	if cur > 0 {
		body["offset"] = int64(cur) + 1
	}

	var raw []tgUpdate
	if err := c.call(ctx, "getUpdates", body, &raw); err != nil {
		return nil, cur, err
	}

	next := cur
	out := make([]Update, 0, len(raw))
	for _, u := range raw {
		if Cursor(u.UpdateID) > next {
			next = Cursor(u.UpdateID)
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		upd := Update{
			Seq:      u.UpdateID,
			SenderID: strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:     u.Message.Text,
		}
		if u.Message.ReplyToMessage != nil {
			upd.ReplyTargetID = u.Message.ReplyToMessage.MessageID
		}
		out = append(out, upd)
	}
	return out, next, nil
}

// call POSTs a JSON body to a Bot API method and decodes the result field
// into out. Non-2xx responses and ok=false envelopes surface the API's
// description so failures are actionable in logs.
func (c *TelegramClient) call(ctx context.Context, method string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/bot"+c.token+"/"+method,
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.New("telegram api error: " + resp.Status + " body=" + string(respBody))
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.OK {
		return errors.New("telegram api error: " + env.Description)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}
