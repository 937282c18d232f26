package telegram

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"nutrition-planner/internal/app"
	"nutrition-planner/internal/config"
	"nutrition-planner/internal/jsonrecover"
	"nutrition-planner/internal/metrics"
	"nutrition-planner/internal/nutrition"
	"nutrition-planner/internal/planner"
)

const helpText = "🥗 *Nutrition Planner*\n\n" +
	"`/plan <goal> <intensity> [calories] [preferences]`\n" +
	"goals: `perder_grasa`, `mantener`, `ganar_masa`, `rendimiento`\n" +
	"intensities: `baja`, `moderada`, `alta`\n" +
	"/last - show your latest plan\n" +
	"/metrics - usage and health report"

// Bot wraps the Telegram API and the nutrition planner.
type Bot struct {
	api     *tgbotapi.BotAPI
	planner *planner.Planner
	plans   *planner.PlanRepository
	metrics *metrics.Store
	cfg     *config.Config
	logger  *zap.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App, logger *zap.Logger) (*Bot, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("webhook set", zap.String("description", resp.Description))

	return &Bot{
		api:     api,
		planner: a.Planner(),
		plans:   a.Plans(),
		metrics: a.Metrics(),
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("failed to parse update", zap.Error(err))
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !isAllowed(b.cfg.TelegramAllowedUserIDs, update.Message.From.ID) {
		b.logger.Warn("unauthorized access attempt",
			zap.Int64("user_id", update.Message.From.ID),
			zap.String("username", update.Message.From.UserName),
		)
		return
	}

	go b.processMessage(update.Message)
}

func isAllowed(allowed []int64, id int64) bool {
	for _, a := range allowed {
		if a == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "plan":
		b.handlePlanRequest(msg)
	case "last":
		b.handleLastPlan(msg)
	case "metrics":
		b.handleMetricsCommand(msg.Chat.ID)
	default:
		b.sendMarkdown(msg.Chat.ID, helpText)
	}
}

func (b *Bot) handlePlanRequest(msg *tgbotapi.Message) {
	req, err := parsePlanArgs(msg.CommandArguments())
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("⚠️ %s\n\n%s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, err.Error()), helpText))
		return
	}
	req.UserID = strconv.FormatInt(msg.From.ID, 10)

	status := tgbotapi.NewMessage(msg.Chat.ID, "🧑‍⚕️ *Thinking...*\n(Building your weekly plan)")
	status.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(status)
	if err != nil {
		b.logger.Error("failed to send initial reply", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CompletionTimeout+30*time.Second)
	defer cancel()

	result, err := b.planner.GeneratePlan(ctx, req)
	if err != nil {
		b.logger.Error("failed to generate plan", zap.String("user_id", req.UserID), zap.Error(err))
		b.editMarkdown(msg.Chat.ID, sent.MessageID, failureText(err))
		return
	}

	parts := formatPlanMessages(result.Plan)
	b.editMarkdown(msg.Chat.ID, sent.MessageID, parts[0])
	for _, part := range parts[1:] {
		b.sendMarkdown(msg.Chat.ID, part)
	}
	if shopping := formatShoppingList(result.Plan); shopping != "" {
		b.sendMarkdown(msg.Chat.ID, shopping)
	}
}

func (b *Bot) handleLastPlan(msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	plans, err := b.plans.ListRecentByUserID(context.Background(), userID, 1)
	if err != nil {
		b.logger.Error("failed to load last plan", zap.String("user_id", userID), zap.Error(err))
		b.sendMarkdown(msg.Chat.ID, "❌ Error loading your plans.")
		return
	}
	if len(plans) == 0 {
		b.sendMarkdown(msg.Chat.ID, "You have no plans yet. Try /plan mantener moderada")
		return
	}
	for _, part := range formatPlanMessages(plans[0].Plan) {
		b.sendMarkdown(msg.Chat.ID, part)
	}
}

func (b *Bot) handleMetricsCommand(chatID int64) {
	usage, err := b.metrics.GetDailyUsage(context.Background(), 7)
	if err != nil {
		b.logger.Error("failed to fetch metrics", zap.Error(err))
		b.sendMarkdown(chatID, "❌ Error fetching metrics.")
		return
	}
	b.sendMarkdown(chatID, formatMetrics(usage, metrics.GetSysHealth(b.cfg.DatabasePath)))
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) editMarkdown(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// parsePlanArgs reads "<goal> <intensity> [calories] [preferences...]".
func parsePlanArgs(args string) (planner.Request, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return planner.Request{}, errors.New("usage: /plan <goal> <intensity> [calories] [preferences]")
	}

	goal, ok := nutrition.ParseGoal(fields[0])
	if !ok {
		return planner.Request{}, fmt.Errorf("unknown goal %q", fields[0])
	}
	intensity, ok := nutrition.ParseIntensity(fields[1])
	if !ok {
		return planner.Request{}, fmt.Errorf("unknown intensity %q", fields[1])
	}
	req := planner.Request{Goal: goal, Intensity: intensity}

	rest := fields[2:]
	if len(rest) > 0 {
		if kcal, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(rest[0]), "kcal"), 64); err == nil {
			if kcal <= 0 || math.IsNaN(kcal) || math.IsInf(kcal, 0) {
				return planner.Request{}, fmt.Errorf("invalid calories %q", rest[0])
			}
			req.DailyCalories = kcal
			rest = rest[1:]
		}
	}
	req.Preferences = strings.Join(rest, " ")
	return req, nil
}

// failureText keeps provider details out of the chat; they are in the logs.
func failureText(err error) string {
	switch {
	case errors.Is(err, jsonrecover.ErrUnparseable),
		errors.Is(err, nutrition.ErrMissingSchedule),
		errors.Is(err, nutrition.ErrMissingAnchorFields),
		errors.Is(err, nutrition.ErrInvalidPlan):
		return "❌ *The plan came back malformed.* Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "⌛ *The plan took too long.* Please try again."
	}
	return "❌ *Error generating plan.* Please try again later."
}
