package bot

import (
	"context"
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

// Patterns the replacer peer's free-text outcome messages are matched
// against. The peer addresses no one in particular, so correlation back to
// a request is by account key (success) or recency (rejection).
var (
	replacerRejectionPattern = regexp.MustCompile(`(?i)cuenta\s+no\s+v[áa]lida`)
	replacerSuccessPattern   = regexp.MustCompile(`\[\s*([^\]]+)\s*\]\s*→\s*([^\s:]+)`)
)

const replacerSuccessMarker = "Cuenta reemplazada"

// cmdRequestReplacement opens the saga: pending request plus an
// accept/reject affordance fanned out to the admins.
func (b *Bot) cmdRequestReplacement(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)

	if !b.enforceCooldown(msg, role) {
		return
	}

	args := commandArgs(msg)
	if len(args) < 2 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/reemplazar")+" "+common.Pill("<correo> <motivo>"))
		return
	}
	email := normalizeEmail(args[0])
	reason := strings.TrimSpace(strings.Join(args[1:], " "))

	if !b.isPrivileged(role) && b.hasBlockingAction(ctx, uid) {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}
	if !b.mustOwnEmail(ctx, msg, role, email) {
		return
	}

	reqId, err := b.store.CreateReplacementRequest(ctx, uid, email, reason, models.RequestPending, "")
	if err != nil {
		b.replyErr(msg.Chat.ID, "No pude registrar la solicitud: "+common.Esc(err.Error()))
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Aceptar", fmt.Sprintf("reemp_ok:%d", reqId)),
			tgbotapi.NewInlineKeyboardButtonData("🛑 Rechazar", fmt.Sprintf("reemp_no:%d", reqId)),
		),
	)
	text := "🆘 <b>Solicitud de reemplazo</b>\n" + common.FormatKV(
		common.KV{Key: "Correo", Value: email},
		common.KV{Key: "Usuario", Value: fmt.Sprintf("%s (ID %s)", usernameOf(msg), uid)},
		common.KV{Key: "Motivo", Value: reason},
	)
	b.notifyAdmins(ctx, text, &keyboard)
	b.replyOK(msg.Chat.ID, "Tu solicitud fue enviada a los administradores.")
}

// cmdReplacementFastPath lets an admin skip the approval step: the request
// is born accepted and forwarded immediately.
func (b *Bot) cmdReplacementFastPath(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if !b.isPrivileged(b.store.GetUserRole(ctx, uid)) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}
	args := commandArgs(msg)
	if len(args) < 2 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/reemplazarvip")+" "+common.Pill("<correo> <motivo>"))
		return
	}
	email := normalizeEmail(args[0])
	reason := strings.TrimSpace(strings.Join(args[1:], " "))

	if _, err := b.store.CreateReplacementRequest(ctx, uid, email, reason, models.RequestAccepted, uid); err != nil {
		b.replyErr(msg.Chat.ID, "No pude registrar la solicitud: "+common.Esc(err.Error()))
		return
	}
	b.replyOK(msg.Chat.ID, "Reemplazo enviado al VIP.")
	b.forwardToReplacer(email, reason)
}

func (b *Bot) cmdListReplacements(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isPrivileged(b.store.GetUserRole(ctx, userIdOf(msg))) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}
	requests, err := b.store.ListPendingReplacementRequests(ctx)
	if err != nil {
		b.replyErr(msg.Chat.ID, "Error leyendo solicitudes: "+common.Esc(err.Error()))
		return
	}
	if len(requests) == 0 {
		b.replyWarn(msg.Chat.ID, "No hay reemplazos pendientes.")
		return
	}
	var sb strings.Builder
	sb.WriteString("📨 <b>Reemplazos pendientes</b>\n")
	for _, r := range requests {
		sb.WriteString(fmt.Sprintf("• #%d %s (user %s): %s\n", r.Id, common.Esc(r.Email), r.UserId, common.Esc(r.Reason)))
	}
	b.reply(msg.Chat.ID, sb.String())
}

// handleReplacementCallback is the admin decision step. The conditional
// update in the store makes a double click a no-op.
func (b *Bot) handleReplacementCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	clickerId := strconv.FormatInt(query.From.ID, 10)
	if !b.isPrivileged(b.store.GetUserRole(ctx, clickerId)) {
		if err := b.msgr.AnswerCallback(query.ID, "No autorizado.", true); err != nil {
			zap.L().Warn("Failed to answer callback", zap.Error(err))
		}
		return
	}
	if err := b.msgr.AnswerCallback(query.ID, "", false); err != nil {
		zap.L().Warn("Failed to answer callback", zap.Error(err))
	}

	action, idText, ok := strings.Cut(query.Data, ":")
	if !ok || (action != "reemp_ok" && action != "reemp_no") {
		return
	}
	reqId, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return
	}

	var chatId int64
	var messageId int
	if query.Message != nil {
		chatId = query.Message.Chat.ID
		messageId = query.Message.MessageID
	}
	edit := func(text string) {
		if messageId == 0 {
			return
		}
		if err := b.msgr.EditMessage(chatId, messageId, text); err != nil {
			zap.L().Warn("Failed to edit approval message", zap.Error(err))
		}
	}

	req, err := b.store.GetReplacementRequest(ctx, reqId)
	if err != nil {
		edit("Solicitud no encontrada (ya gestionada).")
		return
	}
	if req.Status != models.RequestPending {
		edit("Solicitud ya gestionada.")
		return
	}

	if action == "reemp_no" {
		decided, err := b.store.DecideReplacementRequest(ctx, reqId, models.RequestRejected, clickerId)
		if err != nil || !decided {
			edit("Solicitud ya gestionada.")
			return
		}
		edit("❌ Rechazada.")
		b.notifyUser(req.UserId, "❌ Tu reemplazo para "+common.Esc(req.Email)+" fue rechazado.")
		return
	}

	decided, err := b.store.DecideReplacementRequest(ctx, reqId, models.RequestAccepted, clickerId)
	if err != nil || !decided {
		edit("Solicitud ya gestionada.")
		return
	}
	b.notifyUser(req.UserId, "✅ Solicitud aceptada. Buscando…")
	b.forwardToReplacer(req.Email, req.Reason)
	edit("🟢 Aceptada y enviada al VIP.")
}

// forwardToReplacer is fire-and-forget: the peer's answer comes back later
// as an unsolicited message handled by handleReplacerMessage, not via a
// blocking wait.
func (b *Bot) forwardToReplacer(email, reason string) {
	text := strings.TrimSpace("/reemplazar " + email + " " + reason)
	if err := b.relay.Send(relay.PeerReplacer, text); err != nil {
		zap.L().Warn("Failed to forward replacement to peer", zap.String("email", email), zap.Error(err))
	}
}

// handleReplacerMessage reconciles the peer's eventual outcome against the
// persisted requests. It runs for every inbound message from the replacer
// peer and must stay idempotent: state is re-checked before any mutation.
func (b *Bot) handleReplacerMessage(peer relay.PeerHandle, text string) {
	ctx := context.Background()
	text = strings.TrimSpace(text)

	if replacerRejectionPattern.MatchString(text) {
		b.reconcileRejection(ctx, text)
		return
	}
	if !strings.Contains(text, replacerSuccessMarker) {
		return
	}
	m := replacerSuccessPattern.FindStringSubmatch(text)
	if m == nil {
		return
	}
	b.reconcileSuccess(ctx, normalizeEmail(m[1]), normalizeEmail(m[2]))
}

// reconcileRejection has no account key to correlate on; the most recent
// open request is assumed to be the one rejected.
func (b *Bot) reconcileRejection(ctx context.Context, text string) {
	req, err := b.store.LatestOpenReplacementRequest(ctx, "")
	if err != nil {
		zap.L().Error("Failed to look up open replacement request", zap.Error(err))
		return
	}
	if req == nil {
		return
	}
	if err := b.store.SetReplacementStatus(ctx, req.Id, models.RequestRejected); err != nil {
		zap.L().Warn("Failed to mark replacement rejected", zap.Int64("request_id", req.Id), zap.Error(err))
	}
	b.notifyUser(req.UserId,
		"❌ No se pudo procesar tu reemplazo para <b>"+common.Esc(req.Email)+"</b>.\n\n<code>"+common.Esc(text)+"</code>")
	b.notifyAdmins(ctx, "❌ Reemplazo rechazado por el VIP\n"+common.FormatKV(
		common.KV{Key: "Correo", Value: req.Email},
		common.KV{Key: "User_ID", Value: req.UserId},
		common.KV{Key: "Motivo", Value: text},
	), nil)
}

func (b *Bot) reconcileSuccess(ctx context.Context, oldEmail, newEmail string) {
	req, err := b.store.LatestOpenReplacementRequest(ctx, oldEmail)
	if err != nil {
		zap.L().Error("Failed to look up open replacement request",
			zap.String("email", oldEmail), zap.Error(err))
		return
	}
	if req == nil {
		// The peer replaced an account nobody asked about; worth telling
		// the admins, but nothing in the store to mutate.
		b.notifyAdmins(ctx, "ℹ️ VIP reemplazó (sin solicitud asociada):\n"+common.FormatKV(
			common.KV{Key: "Viejo", Value: oldEmail},
			common.KV{Key: "Nuevo", Value: newEmail},
		), nil)
		return
	}

	// Carry over the old assignment's expiry; a fresh default only when
	// the user never actually held the account.
	expiry := common.DaysFromNowISO(assignmentTermDays)
	oldAssignment, err := b.store.FindActiveAssignment(ctx, req.UserId, oldEmail)
	if err != nil {
		zap.L().Error("Failed to load old assignment", zap.String("email", oldEmail), zap.Error(err))
		return
	}
	if oldAssignment == nil {
		// Old gone while the new account is already active: this outcome
		// was applied before. A duplicated peer message must not rewrite
		// the expiry or re-notify anyone.
		newAssignment, err := b.store.FindActiveAssignment(ctx, req.UserId, newEmail)
		if err != nil {
			zap.L().Error("Failed to load replacement assignment", zap.String("email", newEmail), zap.Error(err))
			return
		}
		if newAssignment != nil {
			zap.L().Info("Ignoring duplicate replacement outcome",
				zap.Int64("request_id", req.Id),
				zap.String("old", oldEmail),
				zap.String("new", newEmail))
			return
		}
	} else {
		expiry = oldAssignment.ExpiresAt
	}

	if err := b.store.DeactivateAssignment(ctx, req.UserId, oldEmail); err != nil {
		zap.L().Error("Failed to deactivate replaced assignment", zap.String("email", oldEmail), zap.Error(err))
		return
	}
	if err := b.store.UpsertAccount(ctx, newEmail, expiry); err != nil {
		zap.L().Error("Failed to upsert replacement account", zap.String("email", newEmail), zap.Error(err))
		return
	}
	if err := b.store.UpsertAssignment(ctx, req.UserId, newEmail, expiry, "reemplazo"); err != nil {
		zap.L().Error("Failed to assign replacement account", zap.String("email", newEmail), zap.Error(err))
		return
	}
	if _, err := b.store.RecountAssignments(ctx, req.UserId); err != nil {
		zap.L().Warn("Assignment recount failed", zap.String("user_id", req.UserId), zap.Error(err))
	}
	if err := b.store.SetReplacementStatus(ctx, req.Id, models.RequestAccepted); err != nil {
		zap.L().Warn("Failed to re-affirm replacement request", zap.Int64("request_id", req.Id), zap.Error(err))
	}

	b.notifyUser(req.UserId, "✅ <b>Reemplazo completado</b>\n"+common.FormatKV(
		common.KV{Key: "Antes", Value: oldEmail},
		common.KV{Key: "Ahora", Value: newEmail},
		common.KV{Key: "Vence", Value: common.FormatDate(expiry)},
	))
	b.notifyAdmins(ctx, "🟢 Reemplazo aplicado\n"+common.FormatKV(
		common.KV{Key: "Viejo", Value: oldEmail},
		common.KV{Key: "Nuevo", Value: newEmail},
		common.KV{Key: "User_ID", Value: req.UserId},
	), nil)
}
