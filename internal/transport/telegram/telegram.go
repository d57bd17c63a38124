// Package telegram delivers reminder messages over the Telegram Bot API
// via telebot. The adapter is send-only; inbound updates are not consumed.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type Config struct {
	Token string
	// Retries on flood-wait before giving up on a send.
	FloodRetries int
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// Start marks the adapter running. Token validity was already checked by
// NewBot (getMe); there is no poll loop to launch.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.log.Info("telegram adapter ready", logx.String("bot", a.bot.Me.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		a.log.Debug("telegram stop called but not running")
		return nil
	}
	a.running = false
	a.log.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		DisableNotification:   opt.Silent,
		ThreadID:              to.ThreadID,
	}

	retries := a.cfg.FloodRetries
	if retries <= 0 {
		retries = 2
	}

	var msg *tele.Message
	var err error
	for attempt := 0; ; attempt++ {
		msg, err = a.bot.Send(chat, text, sendOpt)
		if err == nil {
			break
		}
		var flood tele.FloodError
		if !errors.As(err, &flood) || attempt >= retries {
			return transport.MessageRef{}, err
		}
		wait := time.Duration(flood.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		a.log.Warn("telegram flood wait",
			logx.Int64("chat_id", to.ChatID),
			logx.Duration("wait", wait),
			logx.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return transport.MessageRef{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}
