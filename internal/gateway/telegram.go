package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/lexigpt/internal/agent"
)

// TelegramGateway treats every incoming message as an agent goal and replies
// with the outcome of the run.
type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Runner Runner
	logger *slog.Logger
}

func NewTelegramGateway(token string, runner Runner, logger *slog.Logger) (*TelegramGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logger.Info("telegram authorized", "account", bot.Self.UserName)

	return &TelegramGateway{
		Bot:    bot,
		Runner: runner,
		logger: logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	tg.logger.Info("telegram goal", "user", m.From.UserName, "chat_id", m.Chat.ID)

	reply := Reply(ctx, tg.Runner, m.Text)
	msg := tgbotapi.NewMessage(m.Chat.ID, reply)
	if _, err := tg.Bot.Send(msg); err != nil {
		tg.logger.Warn("telegram send failed", "chat_id", m.Chat.ID, "error", err)
	}
}

// Reply runs goal and formats the answer a chat user sees.
func Reply(ctx context.Context, runner Runner, goal string) string {
	out, err := runner.PlanAndRun(ctx, strings.TrimSpace(goal))
	if err != nil {
		if errors.Is(err, agent.ErrEmptyGoal) {
			return "Please describe what you need."
		}
		return "I could not plan that request. Please rephrase it."
	}
	return FormatOutcome(out)
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
