package bot

import (
	"context"
	"errors"

	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// forwardSimple relays one command verbatim to a peer and echoes the
// peer's next message back to the user.
func (b *Bot) forwardSimple(ctx context.Context, msg *tgbotapi.Message, peerName, cmdName string) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)

	if !b.enforceCooldown(msg, role) {
		return
	}
	if !b.isPrivileged(role) && b.hasBlockingAction(ctx, uid) {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}

	args := commandArgs(msg)
	if len(args) == 0 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill(cmdName)+" "+common.Pill("<correo>"))
		return
	}
	email := normalizeEmail(args[0])
	if !b.mustOwnEmail(ctx, msg, role, email) {
		return
	}

	sendText := cmdName + " " + email
	// The travel-mode command is a /code request on the peer's side.
	if cmdName == "/estoydeviaje" {
		sendText = "/code " + email
	}

	opId, err := b.startOperation(ctx, uid, "reenvio", operationPayload(email, sendText), !b.isPrivileged(role))
	if err != nil {
		b.replyErr(msg.Chat.ID, "Tienes una acción pendiente. Espera a que finalice.")
		return
	}
	b.reply(msg.Chat.ID, "📨 <i>Enviando…</i>")

	reply, err := b.relay.SendAndAwait(ctx, peerName, sendText, b.replyTimeout)
	if err != nil {
		if errors.Is(err, relay.ErrNoReply) {
			b.finishOperation(ctx, opId, models.OperationFailed, "timeout")
			b.replyWarn(msg.Chat.ID, "El bot externo no respondió a tiempo (5 min).")
			return
		}
		b.finishOperation(ctx, opId, models.OperationFailed, err.Error())
		b.replyWarn(msg.Chat.ID, "No pude contactar al bot externo: "+common.Esc(err.Error()))
		return
	}

	b.finishOperation(ctx, opId, models.OperationCompleted, reply)
	b.reply(msg.Chat.ID, "📬 <b>Respuesta</b>:\n"+common.Esc(reply))
}
