package bot

import (
	"context"
	"errors"
	"strings"

	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ErrReplyMismatch means the peer answered but about a different account
// than the one requested; nothing is mutated in that case.
var ErrReplyMismatch = errors.New("reply does not match requested account")

// verifyReplyMatches checks the peer's answer names the account the
// request was about before any mutation is trusted to it.
func verifyReplyMatches(reply, email string) error {
	if !strings.Contains(reply, email) {
		return ErrReplyMismatch
	}
	return nil
}

func (b *Bot) cmdRenew(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)

	if !b.enforceCooldown(msg, role) {
		return
	}

	args := commandArgs(msg)
	if len(args) == 0 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/renovar")+" "+common.Pill("<correo>"))
		return
	}
	email := normalizeEmail(args[0])

	if !b.isPrivileged(role) && b.hasBlockingAction(ctx, uid) {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}
	if !b.mustOwnEmail(ctx, msg, role, email) {
		return
	}

	credits, err := b.store.GetCredits(ctx, uid)
	if err != nil {
		b.replyErr(msg.Chat.ID, "Error leyendo créditos: "+common.Esc(err.Error()))
		return
	}
	if credits < 1 {
		b.replyErr(msg.Chat.ID, "No tienes créditos suficientes.")
		return
	}

	opId, err := b.startOperation(ctx, uid, "renovar", operationPayload(email, "/renovar "+email), !b.isPrivileged(role))
	if err != nil {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}
	b.reply(msg.Chat.ID, "🔄 <i>Solicitando renovación…</i>")

	reply, sendErr := b.relay.SendAndAwait(ctx, relay.PeerService, "/renovar "+email, b.replyTimeout)
	if sendErr != nil {
		if errors.Is(sendErr, relay.ErrNoReply) {
			b.finishOperation(ctx, opId, models.OperationFailed, "timeout")
			b.replyWarn(msg.Chat.ID, "El bot externo no respondió a tiempo (5 min).")
			return
		}
		b.finishOperation(ctx, opId, models.OperationFailed, sendErr.Error())
		b.replyWarn(msg.Chat.ID, "No pude contactar al bot externo: "+common.Esc(sendErr.Error()))
		return
	}

	if err := verifyReplyMatches(reply, email); err != nil {
		b.finishOperation(ctx, opId, models.OperationFailed, "correo no coincide")
		b.replyErr(msg.Chat.ID, "La respuesta no coincide con el correo solicitado.")
		return
	}

	expiry := common.DaysFromNowISO(assignmentTermDays)
	if err := b.applyRenewal(ctx, uid, email, expiry); err != nil {
		b.finishOperation(ctx, opId, models.OperationFailed, err.Error())
		b.replyErr(msg.Chat.ID, "Error al actualizar: "+common.Esc(err.Error()))
		return
	}
	b.finishOperation(ctx, opId, models.OperationCompleted, reply)
	b.replyOK(msg.Chat.ID, "Account Update ["+common.Esc(email)+"]: "+common.Esc(common.FormatDate(expiry)))
}

func (b *Bot) applyRenewal(ctx context.Context, uid, email, expiry string) error {
	if err := b.store.UpsertAccount(ctx, email, expiry); err != nil {
		return err
	}
	if err := b.store.UpsertAssignment(ctx, uid, email, expiry, "renovacion"); err != nil {
		return err
	}
	credits, err := b.store.GetCredits(ctx, uid)
	if err != nil {
		return err
	}
	if err := b.store.SetCredits(ctx, uid, credits-1); err != nil {
		return err
	}
	if err := b.store.AddCreditHistory(ctx, uid, -1, "renovacion", "servicio_vip"); err != nil {
		zap.L().Warn("Credit history append failed", zap.String("user_id", uid), zap.Error(err))
	}
	if _, err := b.store.RecountAssignments(ctx, uid); err != nil {
		zap.L().Warn("Assignment recount failed", zap.String("user_id", uid), zap.Error(err))
	}
	return nil
}
