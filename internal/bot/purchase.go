package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// accountPattern extracts the delivered login from the service peer's
// free-text purchase reply.
var accountPattern = regexp.MustCompile(`(?i)Cuenta:\s*([^\s:@]+@[^\s:]+)`)

const assignmentTermDays = 30

func (b *Bot) cmdPurchase(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)

	if !b.enforceCooldown(msg, role) {
		return
	}

	args := commandArgs(msg)
	if len(args) == 0 {
		b.replyWarn(msg.Chat.ID, "Uso (usuario): /comprar 1\nUso (admin/owner): /comprar N")
		return
	}

	count := 1
	if b.isPrivileged(role) {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			b.replyWarn(msg.Chat.ID, "Uso (admin/owner): /comprar N  (N>=1)")
			return
		}
		count = n
	} else if args[0] != "1" {
		b.replyWarn(msg.Chat.ID, "Uso: /comprar 1")
		return
	}

	if !b.isPrivileged(role) && b.hasBlockingAction(ctx, uid) {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}

	credits, err := b.store.GetCredits(ctx, uid)
	if err != nil {
		b.replyErr(msg.Chat.ID, "Error leyendo créditos: "+common.Esc(err.Error()))
		return
	}
	if credits < count {
		b.replyErr(msg.Chat.ID, fmt.Sprintf("Créditos insuficientes. Tienes %d, necesitas %d.", credits, count))
		return
	}

	kind := "compra"
	if count > 1 {
		kind = "compra_lote"
	}
	opId, err := b.startOperation(ctx, uid, kind, operationPayload("", fmt.Sprintf("/comprar %d", count)), !b.isPrivileged(role))
	if err != nil {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("🛒 <b>Procesando</b> %d compra(s)… (máx 5 min c/u)", count))

	// The batch keeps going past individual failures; each item is its
	// own send, parse, assign and debit.
	var successes, failures []string
	for i := 0; i < count; i++ {
		reply, err := b.relay.SendAndAwait(ctx, relay.PeerService, "/comprar 1", b.replyTimeout)
		if err != nil {
			if errors.Is(err, relay.ErrNoReply) {
				failures = append(failures, fmt.Sprintf("#%d: sin respuesta", i+1))
			} else {
				failures = append(failures, fmt.Sprintf("#%d: %s", i+1, err.Error()))
			}
			continue
		}
		m := accountPattern.FindStringSubmatch(reply)
		if m == nil {
			failures = append(failures, fmt.Sprintf("#%d: respuesta inválida", i+1))
			continue
		}
		email := normalizeEmail(m[1])

		expiry := common.DaysFromNowISO(assignmentTermDays)
		if err := b.assignPurchasedAccount(ctx, uid, email, expiry); err != nil {
			failures = append(failures, fmt.Sprintf("#%d: %s", i+1, err.Error()))
			continue
		}
		successes = append(successes, fmt.Sprintf("%s (vence %s)", email, common.FormatDate(expiry)))
	}

	status := models.OperationFailed
	if len(successes) > 0 {
		status = models.OperationCompleted
	}
	b.finishOperation(ctx, opId, status, fmt.Sprintf("exitos=%d, fallos=%d", len(successes), len(failures)))

	var parts []string
	if len(successes) > 0 {
		parts = append(parts, "🟢 <b>Exitosas</b>:\n"+bulletList(successes, 20))
	}
	if len(failures) > 0 {
		parts = append(parts, "🟠 <b>Fallos</b>:\n"+bulletList(failures, 20))
	}
	if len(parts) == 0 {
		b.reply(msg.Chat.ID, "No se concretó ninguna compra.")
		return
	}
	b.reply(msg.Chat.ID, strings.Join(parts, "\n\n"))
}

// assignPurchasedAccount records one delivered account: account upsert,
// assignment upsert, one-credit debit with its audit row, recount. The
// audit append is the only step allowed to fail silently.
func (b *Bot) assignPurchasedAccount(ctx context.Context, uid, email, expiry string) error {
	owner, err := b.store.FindActiveOwner(ctx, email)
	if err != nil {
		return fmt.Errorf("error DB: %w", err)
	}
	if owner != nil && owner.UserId != uid {
		return errors.New("correo ya asignado a otro")
	}

	if err := b.store.UpsertAccount(ctx, email, expiry); err != nil {
		return fmt.Errorf("error DB: %w", err)
	}
	if err := b.store.UpsertAssignment(ctx, uid, email, expiry, "servicio_vip"); err != nil {
		return fmt.Errorf("error DB: %w", err)
	}

	credits, err := b.store.GetCredits(ctx, uid)
	if err != nil {
		return fmt.Errorf("error DB: %w", err)
	}
	if err := b.store.SetCredits(ctx, uid, credits-1); err != nil {
		return fmt.Errorf("error DB: %w", err)
	}
	if err := b.store.AddCreditHistory(ctx, uid, -1, "compra", "servicio_vip"); err != nil {
		zap.L().Warn("Credit history append failed", zap.String("user_id", uid), zap.Error(err))
	}
	if _, err := b.store.RecountAssignments(ctx, uid); err != nil {
		zap.L().Warn("Assignment recount failed", zap.String("user_id", uid), zap.Error(err))
	}
	return nil
}

func bulletList(items []string, limit int) string {
	var sb strings.Builder
	for i, item := range items {
		if i == limit {
			sb.WriteString("…")
			break
		}
		sb.WriteString("• " + common.Esc(item) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
