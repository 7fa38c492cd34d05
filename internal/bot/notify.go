package bot

import (
	"context"
	"sync"
	"time"

	"vip-relay-bot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// adminCache memoizes the admin/owner id set with a TTL; a stale window of
// up to one TTL is acceptable for notification fan-out.
type adminCache struct {
	store store.Store
	ttl   time.Duration

	mu        sync.Mutex
	ids       []string
	fetchedAt time.Time
	now       func() time.Time
}

func newAdminCache(st store.Store, ttl time.Duration) *adminCache {
	return &adminCache{store: st, ttl: ttl, now: time.Now}
}

func (c *adminCache) adminIds(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ids) > 0 && c.now().Sub(c.fetchedAt) <= c.ttl {
		return c.ids
	}
	ids, err := c.store.ListAdminIds(ctx)
	if err != nil {
		zap.L().Warn("Failed to refresh admin cache, using stale set", zap.Error(err))
		return c.ids
	}
	c.ids = ids
	c.fetchedAt = c.now()
	return c.ids
}

// notifyAdmins fans a message out to every cached admin/owner, optionally
// with an inline action keyboard. Per-recipient failures are logged and
// skipped.
func (b *Bot) notifyAdmins(ctx context.Context, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for _, id := range b.admins.adminIds(ctx) {
		chatId, err := parseChatId(id)
		if err != nil {
			continue
		}
		if keyboard != nil {
			err = b.msgr.SendHTMLKeyboard(chatId, text, *keyboard)
		} else {
			err = b.msgr.SendHTML(chatId, text)
		}
		if err != nil {
			zap.L().Warn("Failed to notify admin", zap.String("admin_id", id), zap.Error(err))
		}
	}
}
