package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/aiva/internal/assistant"
	"github.com/xaenox/aiva/internal/logger"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/storage"
	"go.uber.org/zap"
)

const recentLimit = 5

// Assistant is the part of the pipeline the bot talks to
type Assistant interface {
	Process(ctx context.Context, req assistant.Request) (*models.Response, error)
	ResetThread(ctx context.Context, threadID string) error
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api        *tgbotapi.BotAPI
	sender     sender
	assistant  Assistant
	store      storage.TransactionStore
	categories []string
	logger     *zap.Logger
}

func New(token string, a Assistant, store storage.TransactionStore, categories []string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, a, store, categories, logger)
	b.api = api
	return b, nil
}

func newBot(s sender, a Assistant, store storage.TransactionStore, categories []string, logger *zap.Logger) *Bot {
	return &Bot{
		sender:     s,
		assistant:  a,
		store:      store,
		categories: categories,
		logger:     logger,
	}
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// threadID gives every chat its own conversation
func threadID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	resp, err := b.assistant.Process(ctx, assistant.Request{
		Prompt:   content,
		ThreadID: threadID(message.Chat.ID),
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidPrompt) {
			b.sendMessage(message.Chat.ID, "Tell me a bit more, for example: \"spent 12 on lunch today\".")
			return
		}
		b.logger.Error("Failed to process message",
			logger.SafeError(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't handle that right now. Please try again.")
		return
	}

	b.sendMarkdown(message.Chat.ID, message.MessageID, formatResponse(resp))
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "categories":
		b.handleCategories(message)
	case "recent":
		b.handleRecent(ctx, message)
	case "reset":
		b.handleReset(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to aiva! 💸
I keep track of your income and expenses.

Just tell me what happened, like "spent $42.50 on groceries yesterday",
or ask a question, like "how much did I spend on dining this month?".
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/categories - Show suggested categories
/recent - Show your latest transactions
/reset - Forget our conversation

You can:
- Record expenses and income
- Fix or delete a transaction by id or description
- Ask for totals by category or period`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleCategories(message *tgbotapi.Message) {
	if len(b.categories) == 0 {
		b.sendMessage(message.Chat.ID, "There are no suggested categories.")
		return
	}

	response := "*Suggested categories:*\n"
	for _, category := range b.categories {
		response += escapeMarkdown("#"+strings.ReplaceAll(category, " ", "_")) + "\n"
	}
	b.sendMarkdown(message.Chat.ID, 0, response)
}

func (b *Bot) handleRecent(ctx context.Context, message *tgbotapi.Message) {
	txs, err := b.store.GetAll(ctx)
	if err != nil {
		b.logger.Error("Failed to list transactions",
			logger.SafeError(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your transactions.")
		return
	}

	if len(txs) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any transactions yet.")
		return
	}
	if len(txs) > recentLimit {
		txs = txs[len(txs)-recentLimit:]
	}

	response := "*Your latest transactions:*\n"
	for _, tx := range txs {
		response += formatTransaction(tx) + "\n"
	}
	b.sendMarkdown(message.Chat.ID, 0, response)
}

func (b *Bot) handleReset(ctx context.Context, message *tgbotapi.Message) {
	if err := b.assistant.ResetThread(ctx, threadID(message.Chat.ID)); err != nil {
		b.logger.Error("Failed to reset thread",
			logger.SafeError(err),
			zap.Int64("chat_id", message.Chat.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't reset our conversation.")
		return
	}
	b.sendMessage(message.Chat.ID, "Conversation cleared. Your transactions are kept.")
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, replyToID int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.ReplyToMessageID = replyToID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
