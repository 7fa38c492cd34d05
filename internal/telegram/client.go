package telegram

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Client wraps the Telegram Bot API: outbound messages to users and peers,
// document uploads/downloads, callback plumbing.
type Client struct {
	bot *tgbotapi.BotAPI
}

func NewClient(token string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create telegram client: %w", err)
	}
	zap.L().Info("Telegram client authorized", zap.String("account", bot.Self.UserName))
	return &Client{bot: bot}, nil
}

// Updates returns the long-polling update channel.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

// SendText implements relay.Transport: plain text, no markup.
func (c *Client) SendText(chatId int64, text string) error {
	_, err := c.bot.Send(tgbotapi.NewMessage(chatId, text))
	return err
}

// SendHTML sends an HTML-formatted message, retrying as stripped plain
// text when Telegram rejects the markup.
func (c *Client) SendHTML(chatId int64, text string) error {
	msg := tgbotapi.NewMessage(chatId, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := c.bot.Send(msg); err != nil {
		plain := html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatId, plain)); err != nil {
			return fmt.Errorf("unable to send message: %w", err)
		}
	}
	return nil
}

// SendHTMLKeyboard sends an HTML message carrying an inline keyboard.
func (c *Client) SendHTMLKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatId, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("unable to send message with keyboard: %w", err)
	}
	return nil
}

// SendDocument uploads a generated text file: a header line followed by
// rows, one per line.
func (c *Client) SendDocument(chatId int64, filename, header string, rows []string, caption string) error {
	var b strings.Builder
	if header != "" {
		b.WriteString(strings.TrimRight(header, "\n") + "\n")
	}
	for _, row := range rows {
		b.WriteString(strings.TrimRight(row, "\n") + "\n")
	}
	doc := tgbotapi.NewDocument(chatId, tgbotapi.FileBytes{
		Name:  filename,
		Bytes: []byte(b.String()),
	})
	doc.Caption = caption
	if _, err := c.bot.Send(doc); err != nil {
		return fmt.Errorf("unable to send document: %w", err)
	}
	return nil
}

// DownloadDocument fetches the content of an attached file.
func (c *Client) DownloadDocument(fileId string) (string, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileId})
	if err != nil {
		return "", fmt.Errorf("unable to resolve file: %w", err)
	}
	resp, err := http.Get(file.Link(c.bot.Token))
	if err != nil {
		return "", fmt.Errorf("unable to download file: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close file download body", zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unable to download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return string(data), nil
}

// EditMessage replaces the text of a previously sent message (used on the
// admin approval affordance).
func (c *Client) EditMessage(chatId int64, messageId int, text string) error {
	if _, err := c.bot.Send(tgbotapi.NewEditMessageText(chatId, messageId, text)); err != nil {
		return fmt.Errorf("unable to edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally as an alert.
func (c *Client) AnswerCallback(callbackId, text string, alert bool) error {
	callback := tgbotapi.NewCallback(callbackId, text)
	if alert {
		callback = tgbotapi.NewCallbackWithAlert(callbackId, text)
	}
	if _, err := c.bot.Request(callback); err != nil {
		return fmt.Errorf("unable to answer callback: %w", err)
	}
	return nil
}
