package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/relay"
	"vip-relay-bot/internal/store"
	"vip-relay-bot/internal/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Messenger is the user-facing messaging surface the bot needs from the
// Telegram client.
type Messenger interface {
	SendHTML(chatId int64, text string) error
	SendHTMLKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
	SendDocument(chatId int64, filename, header string, rows []string, caption string) error
	DownloadDocument(fileId string) (string, error)
	EditMessage(chatId int64, messageId int, text string) error
	AnswerCallback(callbackId, text string, alert bool) error
}

var _ Messenger = (*telegram.Client)(nil)

// Relayer is the peer-conversation surface: direct sends, correlated
// send-and-await, unsolicited-message subscriptions and inbound dispatch.
type Relayer interface {
	Send(peerName, text string) error
	SendAndAwait(ctx context.Context, peerName, text string, timeout time.Duration) (string, error)
	RegisterHandler(peerName string, handler relay.Handler) error
	IsPeerChat(chatId int64) bool
	Dispatch(chatId int64, text string)
}

var _ Relayer = (*relay.Service)(nil)

// Bot routes Telegram updates into the command orchestrators.
type Bot struct {
	ownerId      string
	seedAdminIds []string
	replyTimeout time.Duration

	store    store.Store
	relay    Relayer
	msgr     Messenger
	cooldown *CooldownLimiter
	admins   *adminCache
}

func NewBot(cfg *models.Config, st store.Store, rl Relayer, m Messenger) *Bot {
	return &Bot{
		ownerId:      cfg.Telegram.OwnerId,
		seedAdminIds: cfg.Telegram.SeedAdminIds,
		replyTimeout: cfg.Relay.ReplyTimeout,
		store:        st,
		relay:        rl,
		msgr:         m,
		cooldown:     NewCooldownLimiter(cfg.Bot.CommandCooldown),
		admins:       newAdminCache(st, cfg.Bot.AdminCacheTTL),
	}
}

// Start registers the replacement-outcome reconciler and writes the owner
// and seed admin rows.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.relay.RegisterHandler(relay.PeerReplacer, b.handleReplacerMessage); err != nil {
		return err
	}
	b.ensureOwnerAndSeedAdmins(ctx)
	return nil
}

// Run consumes the update channel until ctx is cancelled. Command handlers
// run on their own goroutines: a send-and-await can hold a handler for
// minutes and the loop must stay free to dispatch the peer's reply.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		go b.handleReplacementCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if b.relay.IsPeerChat(msg.Chat.ID) {
		b.relay.Dispatch(msg.Chat.ID, msg.Text)
		return
	}
	if msg.Document != nil {
		go b.handleDocument(ctx, msg)
		return
	}
	if !msg.IsCommand() {
		return
	}
	go b.handleCommand(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Command handler panicked",
				zap.String("command", msg.Command()), zap.Any("panic", r))
		}
	}()

	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "info":
		b.cmdInfo(ctx, msg)
	case "comandos":
		b.cmdHelp(ctx, msg)
	case "cuentas":
		b.cmdAccounts(ctx, msg)
	case "code":
		b.forwardSimple(ctx, msg, relay.PeerService, "/code")
	case "link":
		b.forwardSimple(ctx, msg, relay.PeerService, "/link")
	case "activarTV", "activartv":
		b.forwardSimple(ctx, msg, relay.PeerService, "/activarTV")
	case "hogar":
		b.forwardSimple(ctx, msg, relay.PeerCodes, "/hogar")
	case "estoydeviaje":
		b.forwardSimple(ctx, msg, relay.PeerCodes, "/estoydeviaje")
	case "comprar":
		b.cmdPurchase(ctx, msg)
	case "renovar":
		b.cmdRenew(ctx, msg)
	case "asignarcreditos":
		b.cmdGrantCredits(ctx, msg)
	case "miusuario", "misuario":
		b.cmdRegisterClient(ctx, msg)
	case "registraradmin":
		b.cmdRegisterAdmin(ctx, msg)
	case "reemplazar":
		b.cmdRequestReplacement(ctx, msg)
	case "reemplazarvip":
		b.cmdReplacementFastPath(ctx, msg)
	case "reemplazos":
		b.cmdListReplacements(ctx, msg)
	case "registrarcorreos":
		b.cmdRegisterAccounts(ctx, msg)
	case "asignar":
		b.cmdAssign(ctx, msg)
	case "remover":
		b.cmdRemove(ctx, msg)
	}
}

func (b *Bot) ensureOwnerAndSeedAdmins(ctx context.Context) {
	if err := b.store.SetUserRole(ctx, b.ownerId, "owner", models.RoleOwner); err != nil {
		zap.L().Warn("Failed to seed owner", zap.Error(err))
	}
	for _, id := range b.seedAdminIds {
		if b.store.GetUserRole(ctx, id) == models.RoleOwner {
			continue
		}
		if err := b.store.SetUserRole(ctx, id, "admin_"+id, models.RoleAdmin); err != nil {
			zap.L().Warn("Failed to seed admin", zap.String("telegram_id", id), zap.Error(err))
		}
	}
}

func (b *Bot) isPrivileged(role string) bool {
	return role == models.RoleAdmin || role == models.RoleOwner
}

// userIdOf returns the stable id the store keys users by.
func userIdOf(msg *tgbotapi.Message) string {
	return strconv.FormatInt(msg.From.ID, 10)
}

func parseChatId(userId string) (int64, error) {
	return strconv.ParseInt(userId, 10, 64)
}

func usernameOf(msg *tgbotapi.Message) string {
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	return "user_" + userIdOf(msg)
}

// commandArgs splits the text after the command name.
func commandArgs(msg *tgbotapi.Message) []string {
	return strings.Fields(msg.CommandArguments())
}

func isNumericId(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// replyOK / replyWarn / replyErr map the ok|warn|error result kinds onto
// prefixed Telegram messages.
func (b *Bot) replyOK(chatId int64, text string) {
	b.reply(chatId, "✅ "+text)
}

func (b *Bot) replyWarn(chatId int64, text string) {
	b.reply(chatId, "⚠️ "+text)
}

func (b *Bot) replyErr(chatId int64, text string) {
	b.reply(chatId, "❌ "+text)
}

func (b *Bot) reply(chatId int64, text string) {
	if err := b.msgr.SendHTML(chatId, text); err != nil {
		zap.L().Warn("Failed to send reply", zap.Int64("chat_id", chatId), zap.Error(err))
	}
}

// notifyUser messages a user by store id; delivery failures are logged,
// never propagated (the user may have blocked the bot).
func (b *Bot) notifyUser(userId, text string) {
	chatId, err := strconv.ParseInt(userId, 10, 64)
	if err != nil {
		zap.L().Warn("Cannot notify user with non-numeric id", zap.String("user_id", userId))
		return
	}
	if err := b.msgr.SendHTML(chatId, text); err != nil {
		zap.L().Warn("Failed to notify user", zap.String("user_id", userId), zap.Error(err))
	}
}
