package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todolist/internal/model"
	"todolist/internal/view"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageSignInEmail
	stageSignInPassword
	stageSignUpUsername
	stageSignUpEmail
	stageSignUpPassword
	stageSignUpConfirm
	stageResetEmail
	stageNewUsername
)

const (
	cbTogglePrefix = "toggle:"
	cbDeletePrefix = "delete:"
	cbFilterPrefix = "filter:"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	c := b.activeChat(ctx, msg.Chat.ID)

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.setStage(c, stageNone)
		return b.sendText(c.id, "⏪ Input cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, c, msg.Text); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		b.setStage(c, stageNone)
		return b.handleCommand(ctx, c, msg)
	}

	if b.stage(c) != stageNone {
		return b.handleConversation(ctx, c, msg)
	}

	if c.machine.Snapshot().Screen == view.ScreenTodoList {
		c.machine.SetTodoInput(msg.Text)
		c.machine.AddTodo(ctx)
		return b.sendTodoList(c)
	}

	return b.sendText(c.id, "I didn't get that. Send /help for the list of commands.")
}

func (b *Bot) handleCommand(ctx context.Context, c *chat, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return b.handleStart(c, msg.From)
	case "help":
		return b.handleHelp(c)
	case "signin":
		return b.startSignIn(c)
	case "signup":
		return b.startSignUp(c)
	case "reset":
		if args == "" {
			b.setStage(c, stageResetEmail)
			return b.sendWithReplyMarkup(c.id, "📧 Which email should the reset link go to?", cancelKeyboard())
		}
		return b.submitReset(ctx, c, args)
	case "google":
		return b.handleGoogle(c)
	case "signout":
		c.machine.SignOut(ctx)
		if b.flushAlerts(c) {
			return nil
		}
		return b.sendText(c.id, "👋 Signed out.")
	case "todos":
		if !b.requireUser(c) {
			return nil
		}
		c.machine.GoToTodoList()
		return b.sendTodoList(c)
	case "add":
		if !b.requireUser(c) {
			return nil
		}
		if args == "" {
			return b.sendText(c.id, "Tell me what to add: /add Buy milk")
		}
		c.machine.SetTodoInput(args)
		c.machine.AddTodo(ctx)
		return b.sendTodoList(c)
	case "done", "remove":
		if !b.requireUser(c) {
			return nil
		}
		if args == "" {
			return b.sendText(c.id, "Name the todo: /"+msg.Command()+" Buy milk")
		}
		var n int
		if msg.Command() == "done" {
			n = c.machine.ToggleByName(ctx, args)
		} else {
			n = c.machine.DeleteByName(ctx, args)
		}
		if n == 0 {
			return b.sendText(c.id, "No todo named “"+escape(args)+"”.")
		}
		return b.sendTodoList(c)
	case "filter":
		if !b.requireUser(c) {
			return nil
		}
		if args != "" {
			c.machine.SetFilter(model.ParseFilter(args))
		}
		return b.sendTodoList(c)
	case "profile":
		if !b.requireUser(c) {
			return nil
		}
		c.machine.ViewProfile()
		return b.sendProfile(c)
	case "back":
		if !b.requireUser(c) {
			return nil
		}
		c.machine.GoToTodoList()
		return b.sendTodoList(c)
	case "username":
		if !b.requireUser(c) {
			return nil
		}
		c.machine.ViewProfile()
		if args == "" {
			b.setStage(c, stageNewUsername)
			return b.sendWithReplyMarkup(c.id, "✏️ Send the new username.", cancelKeyboard())
		}
		return b.submitUsername(ctx, c, args)
	case "cancel":
		return b.sendText(c.id, "⏪ Input cancelled.")
	default:
		return b.sendText(c.id, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(c *chat, from *tgbotapi.User) error {
	name := strings.TrimSpace(from.FirstName)
	if name == "" {
		name = "there"
	}
	if c.machine.Snapshot().User != nil {
		if err := b.sendText(c.id, "👋 Welcome back, "+escape(name)+"!"); err != nil {
			return err
		}
		return b.sendTodoList(c)
	}
	return b.sendText(c.id, "👋 Hi, "+escape(name)+"!\n<b>I keep your todo list.</b>\n\n"+
		"• /signin — sign in with email and password\n"+
		"• /signup — create an account\n"+
		"• /help — all commands")
}

func (b *Bot) handleHelp(c *chat) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /signin — sign in\n" +
		"• /signup — create an account\n" +
		"• /reset &lt;email&gt; — send a password reset link\n" +
		"• /google — sign in with Google\n" +
		"• /todos — show the todo list\n" +
		"• /add &lt;text&gt; — add a todo (plain text works too)\n" +
		"• /done &lt;text&gt; — toggle every todo with that name\n" +
		"• /remove &lt;text&gt; — delete every todo with that name\n" +
		"• /filter &lt;all|ongoing|completed&gt; — filter the list\n" +
		"• /profile — show your profile\n" +
		"• /username &lt;name&gt; — change your username\n" +
		"• /back — back to the todo list\n" +
		"• /signout — sign out\n" +
		"• /cancel — cancel the current input"
	return b.sendText(c.id, text)
}

func (b *Bot) startSignIn(c *chat) error {
	if c.machine.Snapshot().User != nil {
		return b.sendText(c.id, "You are already signed in. /signout first to switch accounts.")
	}
	if c.machine.Snapshot().IsSignUp {
		c.machine.ToggleSignUp()
	}
	b.setStage(c, stageSignInEmail)
	return b.sendWithReplyMarkup(c.id, "🔑 <b>Sign in</b>\nWhat is your email?", cancelKeyboard())
}

func (b *Bot) startSignUp(c *chat) error {
	if c.machine.Snapshot().User != nil {
		return b.sendText(c.id, "You are already signed in. /signout first to create another account.")
	}
	if !c.machine.Snapshot().IsSignUp {
		c.machine.ToggleSignUp()
	}
	b.setStage(c, stageSignUpUsername)
	return b.sendWithReplyMarkup(c.id, "📝 <b>Sign up</b>\n<b>Step 1:</b> pick a username.", cancelKeyboard())
}

func (b *Bot) handleGoogle(c *chat) error {
	if !b.opts.GoogleEnabled || b.opts.PublicURL == "" {
		return b.sendText(c.id, "Sign-in with Google is not available.")
	}
	return b.sendText(c.id, "🌐 Google sign-in happens in the browser: "+escape(b.opts.PublicURL+"/auth/google"))
}

func (b *Bot) handleConversation(ctx context.Context, c *chat, msg *tgbotapi.Message) error {
	text := strings.TrimSpace(msg.Text)

	switch b.stage(c) {
	case stageSignInEmail:
		c.machine.SetEmail(text)
		b.setStage(c, stageSignInPassword)
		return b.sendWithReplyMarkup(c.id, "🔒 And your password?", cancelKeyboard())
	case stageSignInPassword:
		b.forgetMessage(c.id, msg.MessageID)
		c.machine.SetPassword(msg.Text)
		b.setStage(c, stageNone)
		c.machine.SubmitSignIn(ctx)
		return b.afterAuth(c)
	case stageSignUpUsername:
		c.machine.SetUsername(text)
		b.setStage(c, stageSignUpEmail)
		return b.sendWithReplyMarkup(c.id, "<b>Step 2:</b> your email.", cancelKeyboard())
	case stageSignUpEmail:
		c.machine.SetEmail(text)
		b.setStage(c, stageSignUpPassword)
		return b.sendWithReplyMarkup(c.id, "<b>Step 3:</b> choose a password (at least 6 characters).", cancelKeyboard())
	case stageSignUpPassword:
		b.forgetMessage(c.id, msg.MessageID)
		c.machine.SetPassword(msg.Text)
		b.setStage(c, stageSignUpConfirm)
		return b.sendWithReplyMarkup(c.id, "<b>Step 4:</b> repeat the password.", cancelKeyboard())
	case stageSignUpConfirm:
		b.forgetMessage(c.id, msg.MessageID)
		c.machine.SetConfirmPassword(msg.Text)
		b.setStage(c, stageNone)
		c.machine.SubmitSignUp(ctx)
		if success := c.machine.Snapshot().SuccessMessage; success != "" {
			if err := b.sendText(c.id, "✅ "+escape(success)); err != nil {
				return err
			}
		}
		return b.afterAuth(c)
	case stageResetEmail:
		b.setStage(c, stageNone)
		return b.submitReset(ctx, c, text)
	case stageNewUsername:
		b.setStage(c, stageNone)
		return b.submitUsername(ctx, c, text)
	default:
		b.setStage(c, stageNone)
		return b.sendText(c.id, "Input reset. Try again.")
	}
}

// afterAuth reports alerts, or shows the list when the chat is signed in.
func (b *Bot) afterAuth(c *chat) error {
	if b.flushAlerts(c) {
		return nil
	}
	if c.machine.Snapshot().User == nil {
		return b.sendText(c.id, "Still signed out. Try /signin again.")
	}
	return b.sendTodoList(c)
}

func (b *Bot) submitReset(ctx context.Context, c *chat, email string) error {
	c.machine.SetEmail(email)
	c.machine.SubmitReset(ctx)
	b.flushAlerts(c)
	return nil
}

func (b *Bot) submitUsername(ctx context.Context, c *chat, name string) error {
	c.machine.SetNewUsername(name)
	c.machine.SubmitUsername(ctx)
	return b.sendProfile(c)
}

// requireUser tells signed-out chats how to sign in.
func (b *Bot) requireUser(c *chat) bool {
	if c.machine.Snapshot().User != nil {
		return true
	}
	if err := b.sendText(c.id, "🔑 Sign in first: /signin or /signup."); err != nil {
		log.Printf("[warn] send to %d: %v", c.id, err)
	}
	return false
}

// flushAlerts sends pending alerts and reports whether there were any.
func (b *Bot) flushAlerts(c *chat) bool {
	alerts := c.machine.TakeAlerts()
	for _, a := range alerts {
		if err := b.sendText(c.id, "⚠️ "+escape(a)); err != nil {
			log.Printf("[warn] send alert to %d: %v", c.id, err)
		}
	}
	return len(alerts) > 0
}

// forgetMessage deletes a message that carried a password.
func (b *Bot) forgetMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.Printf("[info] delete password message in %d: %v", chatID, err)
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, c *chat, text string) (bool, error) {
	switch strings.TrimSpace(text) {
	case menuLabelTodos:
		return true, b.handleCommandName(ctx, c, "todos")
	case menuLabelProfile:
		return true, b.handleCommandName(ctx, c, "profile")
	case menuLabelHelp:
		return true, b.handleHelp(c)
	case menuLabelSignIn:
		b.setStage(c, stageNone)
		return true, b.startSignIn(c)
	case menuLabelSignUp:
		b.setStage(c, stageNone)
		return true, b.startSignUp(c)
	case menuLabelSignOut:
		return true, b.handleCommandName(ctx, c, "signout")
	}
	return false, nil
}

// handleCommandName runs an argument-less command from a menu button.
func (b *Bot) handleCommandName(ctx context.Context, c *chat, name string) error {
	b.setStage(c, stageNone)
	text := "/" + name
	return b.handleCommand(ctx, c, &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: c.id, Type: "private"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	})
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] callback ack: %v", err)
	}

	c := b.activeChat(ctx, cb.Message.Chat.ID)
	data := cb.Data
	log.Printf("[info] callback user=%d data=%s", cb.From.ID, data)

	switch {
	case strings.HasPrefix(data, cbTogglePrefix):
		c.machine.Toggle(ctx, strings.TrimPrefix(data, cbTogglePrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		c.machine.Delete(ctx, strings.TrimPrefix(data, cbDeletePrefix))
	case strings.HasPrefix(data, cbFilterPrefix):
		c.machine.SetFilter(model.ParseFilter(strings.TrimPrefix(data, cbFilterPrefix)))
	default:
		return nil
	}

	state := c.machine.Snapshot()
	if state.User == nil {
		return b.sendText(c.id, "🔑 Sign in first: /signin or /signup.")
	}
	return b.editTodoList(c.id, cb.Message.MessageID, state)
}
