// Package channel implements the Telegram transport: it polls for updates,
// downloads attachments, and pushes content items onto the message bus.
package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stellarlinkco/tgvault/internal/bus"
	"github.com/stellarlinkco/tgvault/internal/config"
)

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

func (w *tgBotWrapper) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	return w.bot.GetFile(config)
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	token      string
	proxy      string
	allowFrom  map[string]struct{}
	bus        *bus.MessageBus
	bot        TelegramBot
	httpClient *http.Client
	cancel     context.CancelFunc
	botFactory BotFactory
	log        zerolog.Logger
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus, log zerolog.Logger) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory, log)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory, log zerolog.Logger) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	allow := make(map[string]struct{}, len(cfg.AllowFrom))
	for _, id := range cfg.AllowFrom {
		allow[strings.TrimSpace(id)] = struct{}{}
	}

	return &TelegramChannel{
		token:      cfg.Token,
		proxy:      cfg.Proxy,
		allowFrom:  allow,
		bus:        b,
		httpClient: http.DefaultClient,
		botFactory: factory,
		log:        log,
	}, nil
}

// IsAllowed reports whether the sender passes the allow-list. An empty
// allow-list admits everyone.
func (t *TelegramChannel) IsAllowed(senderID string) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	_, ok := t.allowFrom[senderID]
	return ok
}

func (t *TelegramChannel) initBot() error {
	var client *http.Client
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	} else {
		client = http.DefaultClient
	}
	t.httpClient = client

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.log.Info().Str("username", bot.GetSelf().UserName).Msg("telegram authorized")
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.log.Info().Msg("telegram polling started")
	return nil
}

// attachmentRef identifies the one file a message carries.
type attachmentRef struct {
	fileID      string
	fileName    string
	contentType bus.ContentType
}

// detectAttachment maps a message to its content type and file reference.
// Voice messages and round video notes both land as voice content.
func detectAttachment(msg *tgbotapi.Message) attachmentRef {
	switch {
	case msg.Voice != nil:
		return attachmentRef{msg.Voice.FileID, fmt.Sprintf("voice_%d.ogg", msg.MessageID), bus.ContentVoice}
	case msg.VideoNote != nil:
		return attachmentRef{msg.VideoNote.FileID, fmt.Sprintf("videonote_%d.mp4", msg.MessageID), bus.ContentVoice}
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1] // largest size is last
		return attachmentRef{photo.FileID, fmt.Sprintf("photo_%d.jpg", msg.MessageID), bus.ContentPhoto}
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d.mp4", msg.MessageID)
		}
		return attachmentRef{msg.Video.FileID, name, bus.ContentVideo}
	case msg.Audio != nil:
		name := msg.Audio.FileName
		if name == "" {
			name = fmt.Sprintf("audio_%d.mp3", msg.MessageID)
		}
		return attachmentRef{msg.Audio.FileID, name, bus.ContentAudio}
	case msg.Document != nil:
		name := msg.Document.FileName
		if name == "" {
			name = fmt.Sprintf("document_%d", msg.MessageID)
		}
		return attachmentRef{msg.Document.FileID, name, bus.ContentDocument}
	default:
		return attachmentRef{contentType: bus.ContentText}
	}
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		t.log.Warn().Str("sender", senderID).Str("username", msg.From.UserName).Msg("rejected message")
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	ref := detectAttachment(msg)
	if text == "" && ref.fileID == "" {
		return
	}

	sender := msg.From.UserName
	if sender == "" {
		sender = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	item := bus.ContentItem{
		ID:          uuid.NewString(),
		GroupID:     msg.MediaGroupID,
		Text:        text,
		Attachment:  ref.fileName,
		ContentType: ref.contentType,
		ReceivedAt:  time.Unix(int64(msg.Date), 0),
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		ChatName:    chatName(msg.Chat),
		Sender:      sender,
		MessageID:   msg.MessageID,
	}

	env := bus.InboundEnvelope{Item: item, FileName: ref.fileName}
	if ref.fileID != "" {
		data, err := t.downloadFileData(ref.fileID)
		if err != nil {
			t.log.Error().Err(err).Str("file_id", ref.fileID).Str("type", string(ref.contentType)).Msg("download failed")
			env.DownloadErr = err
		} else {
			env.Data = data
		}
	}

	t.bus.Inbound <- env
}

func chatName(chat *tgbotapi.Chat) string {
	if chat == nil {
		return ""
	}
	if chat.Title != "" {
		return chat.Title
	}
	if chat.UserName != "" {
		return chat.UserName
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

func (t *TelegramChannel) downloadFileData(fileID string) ([]byte, error) {
	if t.bot == nil {
		return nil, fmt.Errorf("telegram bot not initialized")
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get telegram file: %w", err)
	}

	client := t.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(file.Link(t.token))
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram file body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}

	return data, nil
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.log.Info().Msg("telegram stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

// SendText reports a status or error back to the originating chat. Long
// messages are chunked under Telegram's 4096 char limit.
func (t *TelegramChannel) SendText(chatID string, text string) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	const maxLen = 4000
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		text = text[len(chunk):]

		if _, err := t.bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}
