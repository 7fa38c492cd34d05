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
	"vip-relay-bot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var (
	bulkLineSeparator = regexp.MustCompile(`[;, \t]+`)
	assignCaption     = regexp.MustCompile(`^/asignar\s+(\d+)$`)
	removeCaption     = regexp.MustCompile(`^/remover\s+(\d+)$`)
)

// cmdRegisterClient links a client user to the calling admin so /cuentas
// shows the client's assignments too.
func (b *Bot) cmdRegisterClient(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if b.store.GetUserRole(ctx, uid) != models.RoleAdmin {
		b.replyErr(msg.Chat.ID, "Solo admins pueden usar /miusuario.")
		return
	}

	args := commandArgs(msg)
	if len(args) != 1 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/miusuario")+" "+common.Pill("<ID_TELEGRAM_CLIENTE>")+"  (alias: "+common.Pill("/misuario")+")")
		return
	}
	clientId := strings.TrimSpace(args[0])
	if !isNumericId(clientId) {
		b.replyErr(msg.Chat.ID, "ID inválido. Debe ser numérico.")
		return
	}
	if clientId == uid {
		b.replyErr(msg.Chat.ID, "No puedes asignarte a ti mismo.")
		return
	}

	if err := b.store.UpsertUser(ctx, clientId, "user_"+clientId); err != nil {
		b.replyErr(msg.Chat.ID, "No se pudo registrar el cliente.\nDetalle: "+common.Esc(err.Error()))
		return
	}
	if err := b.store.AddAdminClient(ctx, uid, clientId); err != nil {
		b.replyErr(msg.Chat.ID, "No se pudo registrar el cliente.\nDetalle: "+common.Esc(err.Error()))
		return
	}
	b.replyOK(msg.Chat.ID, "Cliente registrado correctamente.\n"+common.FormatKV(
		common.KV{Key: "Admin", Value: uid},
		common.KV{Key: "Cliente", Value: clientId},
	))
}

// cmdRegisterAdmin escalates a user to admin; owner only.
func (b *Bot) cmdRegisterAdmin(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if b.store.GetUserRole(ctx, uid) != models.RoleOwner {
		b.replyErr(msg.Chat.ID, "Solo el owner puede usar /registraradmin.")
		return
	}

	args := commandArgs(msg)
	if len(args) != 1 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/registraradmin")+" "+common.Pill("<ID>"))
		return
	}
	target := strings.TrimSpace(args[0])
	if !isNumericId(target) {
		b.replyErr(msg.Chat.ID, "ID inválido. Debe ser numérico.")
		return
	}

	if err := b.store.SetUserRole(ctx, target, "admin_"+target, models.RoleAdmin); err != nil {
		b.replyErr(msg.Chat.ID, "No se pudo registrar el admin: "+common.Esc(err.Error()))
		return
	}
	b.replyOK(msg.Chat.ID, common.Esc(target)+" ahora es admin.")
}

// cmdGrantCredits moves credits to a target user. Admins transfer from
// their own balance; the owner mints.
func (b *Bot) cmdGrantCredits(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	role := b.store.GetUserRole(ctx, uid)
	if !b.isPrivileged(role) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}

	args := commandArgs(msg)
	if len(args) != 2 || !isNumericId(args[0]) {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/asignarcreditos")+" "+common.Pill("<cantidad> <ID>"))
		return
	}
	amount, _ := strconv.Atoi(args[0])
	if amount <= 0 {
		b.replyWarn(msg.Chat.ID, "La cantidad debe ser positiva.")
		return
	}
	target := strings.TrimSpace(args[1])
	if !isNumericId(target) {
		b.replyWarn(msg.Chat.ID, "ID destino inválido.")
		return
	}

	if role == models.RoleAdmin {
		balance, err := b.store.GetCredits(ctx, uid)
		if err != nil {
			b.replyErr(msg.Chat.ID, "Error leyendo créditos: "+common.Esc(err.Error()))
			return
		}
		if balance < amount {
			b.replyErr(msg.Chat.ID, fmt.Sprintf("No tienes suficientes créditos. Tienes %d.", balance))
			return
		}
	}

	targetUser, err := b.store.GetUser(ctx, target)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.replyErr(msg.Chat.ID, "Error al asignar créditos.\nDetalle: "+common.Esc(err.Error()))
			return
		}
		if err := b.store.UpsertUser(ctx, target, "user_"+target); err != nil {
			b.replyErr(msg.Chat.ID, "Error al asignar créditos.\nDetalle: "+common.Esc(err.Error()))
			return
		}
		targetUser = &models.User{TelegramId: target, Username: "user_" + target}
	}
	before := targetUser.Credits

	if role == models.RoleAdmin {
		balance, err := b.store.GetCredits(ctx, uid)
		if err != nil {
			b.replyErr(msg.Chat.ID, "Error al asignar créditos.\nDetalle: "+common.Esc(err.Error()))
			return
		}
		if err := b.store.SetCredits(ctx, uid, balance-amount); err != nil {
			b.replyErr(msg.Chat.ID, "Error al asignar créditos.\nDetalle: "+common.Esc(err.Error()))
			return
		}
		if err := b.store.AddCreditHistory(ctx, uid, -amount, "transferencia", uid); err != nil {
			zap.L().Warn("Credit history append failed", zap.String("user_id", uid), zap.Error(err))
		}
	}

	if err := b.store.SetCredits(ctx, target, before+amount); err != nil {
		b.replyErr(msg.Chat.ID, "Error al asignar créditos.\nDetalle: "+common.Esc(err.Error()))
		return
	}
	reason := "asignacion_owner"
	if role == models.RoleAdmin {
		reason = "asignacion_admin"
	}
	if err := b.store.AddCreditHistory(ctx, target, amount, reason, uid); err != nil {
		zap.L().Warn("Credit history append failed", zap.String("user_id", target), zap.Error(err))
	}

	b.reply(msg.Chat.ID, "🎁 <b>Créditos asignados</b>\n"+common.FormatKV(
		common.KV{Key: "Destino", Value: fmt.Sprintf("%s (%s)", targetUser.Username, target)},
		common.KV{Key: "Antes", Value: strconv.Itoa(before)},
		common.KV{Key: "Cambio", Value: "+" + strconv.Itoa(amount)},
		common.KV{Key: "Ahora", Value: strconv.Itoa(before + amount)},
	))
}

// cmdRegisterAccounts bulk-upserts accounts from the message body:
// one "email;dd/mm/aaaa" per line.
func (b *Bot) cmdRegisterAccounts(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if !b.isPrivileged(b.store.GetUserRole(ctx, uid)) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}

	_, body, _ := strings.Cut(msg.Text, "\n")
	if strings.TrimSpace(body) == "" {
		body = msg.CommandArguments()
	}
	if strings.TrimSpace(body) == "" {
		b.replyWarn(msg.Chat.ID, "Envía el texto debajo del comando o adjunta un .txt con caption /registrarcorreos.\nFormato por línea:  correo;dd/mm/aaaa")
		return
	}

	ok, bad := b.registerAccountLines(ctx, strings.Split(body, "\n"))
	b.reply(msg.Chat.ID, bulkResultText("✅ Registrados", ok, bad))
}

func (b *Bot) registerAccountLines(ctx context.Context, lines []string) (int, []string) {
	ok := 0
	var bad []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := bulkLineSeparator.Split(line, -1)
		if len(parts) < 2 {
			bad = append(bad, line)
			continue
		}
		email := normalizeEmail(parts[0])
		expiry, valid := common.ParseDate(parts[1])
		if !valid {
			bad = append(bad, line)
			continue
		}
		if err := b.store.UpsertAccount(ctx, email, expiry); err != nil {
			bad = append(bad, fmt.Sprintf("%s (%s)", line, err.Error()))
			continue
		}
		ok++
	}
	return ok, bad
}

// assignOne performs one admin assignment: ownership conflict check,
// account upsert, assignment upsert, recount.
func (b *Bot) assignOne(ctx context.Context, email, expiry, target string) error {
	email = normalizeEmail(email)
	if email == "" || expiry == "" || target == "" {
		return errors.New("datos inválidos")
	}
	owner, err := b.store.FindActiveOwner(ctx, email)
	if err != nil {
		return err
	}
	if owner != nil && owner.UserId != target {
		return errors.New("correo asignado a otro usuario")
	}
	if err := b.store.UpsertAccount(ctx, email, expiry); err != nil {
		return err
	}
	if err := b.store.UpsertAssignment(ctx, target, email, expiry, "admin"); err != nil {
		if errors.Is(err, store.ErrOwnershipConflict) {
			return errors.New("correo asignado a otro usuario")
		}
		return err
	}
	if _, err := b.store.RecountAssignments(ctx, target); err != nil {
		zap.L().Warn("Assignment recount failed", zap.String("user_id", target), zap.Error(err))
	}
	return nil
}

func (b *Bot) cmdAssign(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if !b.isPrivileged(b.store.GetUserRole(ctx, uid)) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}

	args := commandArgs(msg)
	if len(args) < 3 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/asignar")+" "+common.Pill("<correo> <dd/mm/aaaa> <ID>")+"  (o)  "+common.Pill("/asignar")+" "+common.Pill("<ID> <correo> <dd/mm/aaaa>"))
		return
	}

	// Both argument orders are accepted: id first or email first.
	var target, email, expiry string
	var valid bool
	if isNumericId(args[0]) {
		target = args[0]
		email = normalizeEmail(args[1])
		expiry, valid = common.ParseDate(args[2])
	} else {
		email = normalizeEmail(args[0])
		expiry, valid = common.ParseDate(args[1])
		target = strings.TrimSpace(args[2])
	}
	if !isNumericId(target) || !valid {
		b.replyErr(msg.Chat.ID, "Fecha inválida (usa dd/mm/aaaa) o ID inválido.")
		return
	}

	if err := b.assignOne(ctx, email, expiry, target); err != nil {
		b.replyErr(msg.Chat.ID, "No se pudo asignar "+common.Pill(email)+": "+common.Esc(err.Error()))
		return
	}
	b.replyOK(msg.Chat.ID, "Asignado "+common.Pill(email)+" a "+common.Pill(target)+" (vence "+common.Pill(common.FormatDate(expiry))+")")
}

func (b *Bot) cmdRemove(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if !b.isPrivileged(b.store.GetUserRole(ctx, uid)) {
		b.replyErr(msg.Chat.ID, "No autorizado.")
		return
	}

	args := commandArgs(msg)
	if len(args) < 2 {
		b.replyWarn(msg.Chat.ID, "Uso: "+common.Pill("/remover")+" "+common.Pill("<correo> <ID>"))
		return
	}
	email := normalizeEmail(args[0])
	target := strings.TrimSpace(args[1])
	if !isNumericId(target) {
		b.replyErr(msg.Chat.ID, "ID inválido.")
		return
	}

	if err := b.store.DeactivateAssignment(ctx, target, email); err != nil {
		b.replyErr(msg.Chat.ID, "Error: "+common.Esc(err.Error()))
		return
	}
	if _, err := b.store.RecountAssignments(ctx, target); err != nil {
		zap.L().Warn("Assignment recount failed", zap.String("user_id", target), zap.Error(err))
	}
	b.replyOK(msg.Chat.ID, "Removido "+common.Pill(email)+" de "+common.Pill(target)+".")
}

// handleDocument routes attached .txt files by caption: bulk account
// registration, bulk assignment or bulk removal.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	uid := userIdOf(msg)
	if !b.isPrivileged(b.store.GetUserRole(ctx, uid)) {
		return
	}

	caption := strings.TrimSpace(msg.Caption)
	isRegister := strings.HasPrefix(caption, "/registrarcorreos")
	mAssign := assignCaption.FindStringSubmatch(caption)
	mRemove := removeCaption.FindStringSubmatch(caption)
	if !isRegister && mAssign == nil && mRemove == nil {
		return
	}

	if msg.Document.MimeType != "text/plain" {
		b.replyWarn(msg.Chat.ID, "Adjunta un .txt de texto plano.")
		return
	}
	content, err := b.msgr.DownloadDocument(msg.Document.FileID)
	if err != nil {
		b.replyErr(msg.Chat.ID, "No pude descargar el archivo: "+common.Esc(err.Error()))
		return
	}
	lines := strings.Split(content, "\n")

	switch {
	case isRegister:
		ok, bad := b.registerAccountLines(ctx, lines)
		b.reply(msg.Chat.ID, bulkResultText("✅ Registrados", ok, bad))

	case mAssign != nil:
		target := mAssign[1]
		ok := 0
		var bad []string
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := bulkLineSeparator.Split(line, -1)
			if len(parts) < 2 {
				bad = append(bad, line)
				continue
			}
			expiry, valid := common.ParseDate(parts[1])
			if !valid {
				bad = append(bad, line)
				continue
			}
			if err := b.assignOne(ctx, parts[0], expiry, target); err != nil {
				bad = append(bad, fmt.Sprintf("%s (%s)", line, err.Error()))
				continue
			}
			ok++
		}
		b.reply(msg.Chat.ID, bulkResultText("📎 Asignados", ok, bad))

	case mRemove != nil:
		target := mRemove[1]
		ok := 0
		var bad []string
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			email := normalizeEmail(strings.Fields(line)[0])
			if err := b.store.DeactivateAssignment(ctx, target, email); err != nil {
				bad = append(bad, fmt.Sprintf("%s (%s)", line, err.Error()))
				continue
			}
			ok++
		}
		if _, err := b.store.RecountAssignments(ctx, target); err != nil {
			zap.L().Warn("Assignment recount failed", zap.String("user_id", target), zap.Error(err))
		}
		b.reply(msg.Chat.ID, bulkResultText("🗑️ Removidos", ok, bad))
	}
}

func bulkResultText(prefix string, ok int, bad []string) string {
	text := fmt.Sprintf("%s: %d", prefix, ok)
	if len(bad) > 0 {
		text += fmt.Sprintf("\n❌ Errores (%d):\n", len(bad))
		limit := len(bad)
		if limit > 20 {
			limit = 20
		}
		for _, line := range bad[:limit] {
			text += "- " + common.Esc(line) + "\n"
		}
		text = strings.TrimRight(text, "\n")
	}
	return text
}
