package bot

import (
	"fmt"
	"html"
	"log"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todolist/internal/model"
	"todolist/internal/view"
)

const (
	btnCancelDialog  = "⏪ Cancel input"
	iconOngoing      = "⬜"
	iconCompleted    = "✅"
	menuLabelTodos   = "📋 Todos"
	menuLabelProfile = "👤 Profile"
	menuLabelHelp    = "ℹ️ Help"
	menuLabelSignIn  = "🔑 Sign in"
	menuLabelSignUp  = "📝 Sign up"
	menuLabelSignOut = "🚪 Sign out"
)

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = b.menuFor(chatID)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// menuFor picks the reply keyboard matching the chat's session.
func (b *Bot) menuFor(chatID int64) tgbotapi.ReplyKeyboardMarkup {
	b.mu.Lock()
	c, ok := b.chats[chatID]
	b.mu.Unlock()
	if ok && c.machine.Session().Current() != nil {
		return mainMenuKeyboard()
	}
	return authKeyboard()
}

func (b *Bot) sendTodoList(c *chat) error {
	b.flushAlerts(c)
	text, markup := todoListMessage(c.machine.Snapshot())
	return b.sendWithReplyMarkup(c.id, text, markup)
}

// editTodoList redraws the list in place after a button press.
func (b *Bot) editTodoList(chatID int64, messageID int, state view.State) error {
	text, markup := todoListMessage(state)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Request(edit); err != nil {
		log.Printf("[info] edit list in %d: %v", chatID, err)
	}
	return nil
}

func (b *Bot) sendProfile(c *chat) error {
	return b.sendText(c.id, profileMessage(c.machine.Snapshot()))
}

// Telegram rejects messages over 4096 characters and large keyboards, so
// long lists are cut.
const (
	maxListText       = 3800
	maxListRows       = 40
	maxListNameLength = 120
)

// todoListMessage renders the visible tasks with a toggle and a delete button
// each, followed by the filter row.
func todoListMessage(state view.State) (string, tgbotapi.InlineKeyboardMarkup) {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Todo List</b> · %s\n", state.Filter.Label()))

	var buttons [][]tgbotapi.InlineKeyboardButton
	if len(state.Visible) == 0 {
		builder.WriteString("\nNothing here. Send any text to add a todo.")
	}
	for i, task := range state.Visible {
		icon := iconOngoing
		if task.Completed {
			icon = iconCompleted
		}
		line := fmt.Sprintf("\n%d. %s %s", i+1, icon, escape(shortTitle(task.TodoName, maxListNameLength)))
		if i == maxListRows || builder.Len()+len(line) > maxListText {
			builder.WriteString(fmt.Sprintf("\n… and %d more. Use a filter to narrow the list.", len(state.Visible)-i))
			break
		}
		builder.WriteString(line)

		label := fmt.Sprintf("%s %d · %s", icon, i+1, shortTitle(task.TodoName, 24))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTogglePrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}

	var filters []tgbotapi.InlineKeyboardButton
	for _, f := range model.Filters {
		label := f.Label()
		if f == state.Filter {
			label = "• " + label
		}
		filters = append(filters, tgbotapi.NewInlineKeyboardButtonData(label, cbFilterPrefix+string(f)))
	}
	buttons = append(buttons, filters)

	return builder.String(), tgbotapi.NewInlineKeyboardMarkup(buttons...)
}

func profileMessage(state view.State) string {
	var builder strings.Builder
	builder.WriteString("👤 <b>Profile</b>\n")
	if state.User != nil {
		builder.WriteString(fmt.Sprintf("• <b>Email:</b> %s\n", escape(state.User.Email)))
	}
	username := state.ProfileUsername
	if username == "" {
		username = "—"
	}
	builder.WriteString(fmt.Sprintf("• <b>Username:</b> %s\n", escape(username)))
	if state.ProfileStatus != "" {
		icon := "✅"
		if state.ProfileFailed {
			icon = "⚠️"
		}
		builder.WriteString(fmt.Sprintf("\n%s %s\n", icon, escape(state.ProfileStatus)))
	}
	builder.WriteString("\n/username &lt;name&gt; to change it, /back for the list.")
	return builder.String()
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTodos),
			tgbotapi.NewKeyboardButton(menuLabelProfile),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
			tgbotapi.NewKeyboardButton(menuLabelSignOut),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func authKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelSignIn),
			tgbotapi.NewKeyboardButton(menuLabelSignUp),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func shortTitle(title string, maxLen int) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxLen-1]) + "…"
}
