package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"vip-relay-bot/internal/common"
	"vip-relay-bot/internal/models"
	"vip-relay-bot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	username := usernameOf(msg)

	b.ensureOwnerAndSeedAdmins(ctx)
	if _, err := b.store.GetUser(ctx, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if err := b.store.UpsertUser(ctx, uid, username); err != nil {
				zap.L().Warn("Failed to register user on /start", zap.String("user_id", uid), zap.Error(err))
			} else {
				b.replyOK(msg.Chat.ID, "Registro completado.")
			}
		} else {
			zap.L().Warn("Failed to look up user on /start", zap.String("user_id", uid), zap.Error(err))
		}
	}
	b.reply(msg.Chat.ID, b.buildInfoText(ctx, uid, username))
}

func (b *Bot) cmdInfo(ctx context.Context, msg *tgbotapi.Message) {
	b.reply(msg.Chat.ID, b.buildInfoText(ctx, userIdOf(msg), usernameOf(msg)))
}

func (b *Bot) buildInfoText(ctx context.Context, uid, username string) string {
	credits, err := b.store.GetCredits(ctx, uid)
	if err != nil {
		zap.L().Warn("Failed to read credits for info card", zap.String("user_id", uid), zap.Error(err))
	}
	total, err := b.store.RecountAssignments(ctx, uid)
	if err != nil {
		zap.L().Warn("Failed to recount assignments for info card", zap.String("user_id", uid), zap.Error(err))
	}
	role := b.store.GetUserRole(ctx, uid)
	return "ℹ️ <b>INFO</b>\n" + common.FormatKV(
		common.KV{Key: "Username", Value: username},
		common.KV{Key: "ID", Value: uid},
		common.KV{Key: "Rol", Value: role},
		common.KV{Key: "Cuentas", Value: fmt.Sprintf("%d", total)},
		common.KV{Key: "Créditos", Value: fmt.Sprintf("%d", credits)},
	)
}

func (b *Bot) cmdHelp(ctx context.Context, msg *tgbotapi.Message) {
	role := b.store.GetUserRole(ctx, userIdOf(msg))
	var sb strings.Builder
	sb.WriteString("📋 <b>Comandos de usuario</b>\n")
	sb.WriteString(common.Pill("/start") + " – registrarte / ver info\n")
	sb.WriteString(common.Pill("/info") + " – tu info\n")
	sb.WriteString(common.Pill("/cuentas") + " – ver tus cuentas (si >10, en .txt)\n")
	sb.WriteString(common.Pill("/code") + " " + common.Pill("<correo>") + "\n")
	sb.WriteString(common.Pill("/link") + " " + common.Pill("<correo>") + "\n")
	sb.WriteString(common.Pill("/activarTV") + " " + common.Pill("<correo>") + "\n")
	sb.WriteString(common.Pill("/hogar") + " " + common.Pill("<correo>") + "\n")
	sb.WriteString(common.Pill("/estoydeviaje") + " " + common.Pill("<correo>") + " (se envía como /code)\n")
	sb.WriteString(common.Pill("/comprar") + " 1\n")
	sb.WriteString(common.Pill("/renovar") + " " + common.Pill("<correo>") + "\n")
	sb.WriteString(common.Pill("/reemplazar") + " " + common.Pill("<correo>") + " " + common.Pill("<motivo>") + "\n")
	if b.isPrivileged(role) {
		sb.WriteString("\n👑 <b>Comandos admin/owner</b>\n")
		sb.WriteString(common.Pill("/miusuario") + " " + common.Pill("<ID>") + "  (alias " + common.Pill("/misuario") + ")\n")
		sb.WriteString(common.Pill("/registraradmin") + " " + common.Pill("<ID>") + "  (solo owner)\n")
		sb.WriteString(common.Pill("/registrarcorreos") + "  (texto o .txt:  correo;dd/mm/aaaa)\n")
		sb.WriteString(common.Pill("/asignar") + " " + common.Pill("<correo> <dd/mm/aaaa> <ID>") + "  (o .txt con caption '/asignar <ID>')\n")
		sb.WriteString(common.Pill("/remover") + " " + common.Pill("<correo> <ID>") + "  (o .txt con caption '/remover <ID>')\n")
		sb.WriteString(common.Pill("/asignarcreditos") + " " + common.Pill("<cantidad> <ID>") + "\n")
		sb.WriteString(common.Pill("/comprar") + " N  (admin/owner)\n")
		sb.WriteString(common.Pill("/reemplazarvip") + " " + common.Pill("<correo> <motivo>") + "\n")
		sb.WriteString(common.Pill("/reemplazos") + "  (ver pendientes)\n")
	}
	b.reply(msg.Chat.ID, sb.String())
}

func (b *Bot) cmdAccounts(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)

	switch role {
	case models.RoleOwner:
		assignments, err := b.store.ListAllActiveAssignments(ctx)
		if err != nil {
			b.replyErr(msg.Chat.ID, "Error leyendo asignaciones: "+common.Esc(err.Error()))
			return
		}
		if len(assignments) == 0 {
			b.replyWarn(msg.Chat.ID, "No hay asignaciones activas.")
			return
		}
		sortByExpiry(assignments)
		rows := make([]string, 0, len(assignments))
		for _, a := range assignments {
			rows = append(rows, fmt.Sprintf("%s | %s | %s", a.UserId, a.Email, common.FormatDate(a.ExpiresAt)))
		}
		b.sendAccountsDocument(msg.Chat.ID, "todas_asignaciones_activas.txt",
			"usuario_id | correo | fecha_venc (dd/mm/aaaa)", rows,
			"📄 Todas las cuentas activas (ordenadas por vencimiento)")

	case models.RoleAdmin:
		clientIds, err := b.store.GetAdminClientIds(ctx, uid)
		if err != nil {
			zap.L().Warn("Failed to read admin clients", zap.String("admin_id", uid), zap.Error(err))
		}
		ids := append(clientIds, uid)
		var rows []string
		for _, cid := range ids {
			assignments, err := b.store.ListActiveAssignments(ctx, cid)
			if err != nil {
				zap.L().Warn("Failed to list assignments", zap.String("user_id", cid), zap.Error(err))
				continue
			}
			sortByExpiry(assignments)
			for _, a := range assignments {
				rows = append(rows, fmt.Sprintf("%s | %s | %s", cid, a.Email, common.FormatDate(a.ExpiresAt)))
			}
		}
		if len(rows) == 0 {
			b.replyWarn(msg.Chat.ID, "No hay cuentas para ti o tus clientes.")
			return
		}
		b.sendAccountsDocument(msg.Chat.ID, "cuentas_admin_y_clientes.txt",
			"usuario_id | correo | fecha_venc (dd/mm/aaaa)", rows,
			"📄 Cuentas (tú y tus clientes), ordenadas por vencimiento")

	default:
		assignments, err := b.store.ListActiveAssignments(ctx, uid)
		if err != nil {
			b.replyErr(msg.Chat.ID, "Error leyendo tus cuentas: "+common.Esc(err.Error()))
			return
		}
		if len(assignments) == 0 {
			b.replyWarn(msg.Chat.ID, "No tienes cuentas asignadas.")
			return
		}
		sortByExpiry(assignments)
		if len(assignments) > 10 {
			rows := make([]string, 0, len(assignments))
			for _, a := range assignments {
				rows = append(rows, fmt.Sprintf("%s | %s", a.Email, common.FormatDate(a.ExpiresAt)))
			}
			b.sendAccountsDocument(msg.Chat.ID, "tus_cuentas.txt",
				"correo | fecha_venc (dd/mm/aaaa)", rows,
				"📄 Tus cuentas (ordenadas por vencimiento)")
			return
		}
		var sb strings.Builder
		sb.WriteString("🗂️ <b>Tus cuentas</b> (ordenadas por vencimiento):\n")
		for _, a := range assignments {
			sb.WriteString(fmt.Sprintf("• %s — vence %s\n", common.Esc(a.Email), common.Esc(common.FormatDate(a.ExpiresAt))))
		}
		b.reply(msg.Chat.ID, sb.String())
	}
}

func (b *Bot) sendAccountsDocument(chatId int64, filename, header string, rows []string, caption string) {
	if err := b.msgr.SendDocument(chatId, filename, header, rows, caption); err != nil {
		zap.L().Warn("Failed to send accounts document", zap.Int64("chat_id", chatId), zap.Error(err))
		b.replyErr(chatId, "No pude enviar el archivo de cuentas.")
	}
}

func sortByExpiry(assignments []models.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		return common.DateSortKey(assignments[i].ExpiresAt).Before(common.DateSortKey(assignments[j].ExpiresAt))
	})
}
