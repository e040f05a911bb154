// Package telegram bridges Telegram chats to the gateway: text and photo
// messages become inbound turns, responses are delivered back to the chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/parley/internal/gateway"
	"github.com/user/parley/internal/state"
	"github.com/user/parley/internal/types"
)

const maxTelegramMessage = 4096

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot           *tgbotapi.BotAPI
	gateway       *gateway.Gateway
	sessions      types.SessionStore
	conversations types.ConversationStore
	uploads       *state.UploadStore
	httpClient    *http.Client
}

// New creates a Telegram adapter.
func New(token string, gw *gateway.Gateway, sessions types.SessionStore, conversations types.ConversationStore, uploads *state.UploadStore) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:           bot,
		gateway:       gw,
		sessions:      sessions,
		conversations: conversations,
		uploads:       uploads,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if update.Message.Text == "" && len(update.Message.Photo) == 0 {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	turn := &types.InboundTurn{
		Source:     "telegram",
		SessionKey: buildSessionKey(msg.From.ID, msg.Chat.ID),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Text:       msg.Text,
	}

	if len(msg.Photo) > 0 {
		path, err := a.downloadPhoto(ctx, msg.Photo)
		if err != nil {
			slog.Error("download photo failed", "chat_id", chatID, "error", err)
			a.sendResponse(chatID, "Sorry, I couldn't download that photo.")
			return
		}
		turn.ImagePath = path
		turn.Text = msg.Caption
	}

	_, err := a.gateway.HandleInbound(ctx, turn, gateway.WithOnComplete(func(response string) {
		if turn.ImagePath != "" {
			if err := a.uploads.Remove(turn.ImagePath); err != nil {
				slog.Warn("remove photo upload failed", "path", turn.ImagePath, "error", err)
			}
		}
		if response != "" {
			a.sendResponse(chatID, response)
		}
	}))
	if err != nil {
		slog.Error("handle inbound failed", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// downloadPhoto fetches the largest rendition of a photo and stores it as a
// transient upload.
func (a *Adapter) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) (string, error) {
	largest := sizes[len(sizes)-1]
	url, err := a.bot.GetFileDirectURL(largest.FileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch photo: status %d", resp.StatusCode)
	}

	return a.uploads.Save(resp.Body, largest.FileID+".jpg")
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildSessionKey(msg.From.ID, msg.Chat.ID)

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm Parley. Send me a message or a photo to get started.")

	case "new":
		sid, err := a.sessions.ResolveOrCreate(ctx, key)
		if err != nil {
			a.sendResponse(chatID, "Error starting a new conversation.")
			return
		}
		if err := a.conversations.Clear(ctx, sid); err != nil {
			a.sendResponse(chatID, "Error starting a new conversation.")
			return
		}
		a.sendResponse(chatID, "Starting fresh. Previous conversation has been cleared.")

	case "status":
		sid, err := a.sessions.ResolveOrCreate(ctx, key)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		count, err := a.conversations.Count(ctx, sid)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Session: %s\nMessages: %d", sid, count))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /new, /status")
	}
}

// SendTo delivers a message to the chat encoded in a telegram session key
// ("telegram:<user>:<chat>"). Used for scheduled task responses.
func (a *Adapter) SendTo(sessionKey types.SessionKey, text string) error {
	parts := strings.Split(string(sessionKey), ":")
	if len(parts) != 3 || parts[0] != "telegram" {
		return fmt.Errorf("invalid telegram session key: %s", sessionKey)
	}
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID in session key %s: %w", sessionKey, err)
	}
	a.sendResponse(chatID, text)
	return nil
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func splitMessage(text string) []string {
	var parts []string
	for len(text) > maxTelegramMessage {
		// Back up to a rune boundary so multi-byte characters stay whole.
		cut := maxTelegramMessage
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return append(parts, text)
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
