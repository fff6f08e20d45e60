package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todolist/internal/model"
	"todolist/internal/session"
	"todolist/internal/view"
)

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Summarizer builds the periodic report for a signed-in user.
type Summarizer interface {
	Summary(ctx context.Context, user model.User, now time.Time) (string, error)
}

// SessionVerifier checks that a signed-in session is still live and ends it
// when it is not.
type SessionVerifier interface {
	Verify(ctx context.Context, sess *session.Context) error
}

// MachineFactory builds the state machine for a new chat.
type MachineFactory func(sess *session.Context) *view.Machine

// Options wires the bot to the rest of the application.
type Options struct {
	NewMachine MachineFactory
	Reports    Summarizer
	Sessions   SessionVerifier
	// IdleTimeout is how long a signed-out chat is kept without updates.
	IdleTimeout time.Duration
	// PublicURL is where the web client lives; Google sign-in happens there.
	PublicURL     string
	GoogleEnabled bool
}

// chat is one private conversation: its machine and the multi-step input
// currently in progress.
type chat struct {
	id       int64
	machine  *view.Machine
	stage    conversationStage
	lastSeen time.Time
}

// Bot aggregates the Telegram API with one view machine per chat.
type Bot struct {
	api    Sender
	poller *tgbotapi.BotAPI
	opts   Options
	now    func() time.Time

	mu    sync.Mutex
	chats map[int64]*chat
}

// New authorizes against the Telegram API and returns a ready bot.
func New(token string, opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	b := NewWithSender(api, opts)
	b.poller = api
	return b, nil
}

// NewWithSender builds a bot on top of an existing API client. Such a bot
// cannot poll; updates are fed through HandleUpdate.
func NewWithSender(api Sender, opts Options) *Bot {
	return &Bot{
		api:   api,
		opts:  opts,
		now:   time.Now,
		chats: make(map[int64]*chat),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot has no update source")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}

	b.Close()
	return nil
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("[warn] handle callback: %v", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("[warn] handle message: %v", err)
		}
	}
}

// Close stops every chat machine.
func (b *Bot) Close() {
	b.mu.Lock()
	chats := b.chats
	b.chats = make(map[int64]*chat)
	b.mu.Unlock()

	for _, c := range chats {
		c.machine.Close()
	}
}

// chat returns the conversation for chatID, creating a signed-out one.
func (b *Bot) chat(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.chats[chatID]
	if !ok {
		m := b.opts.NewMachine(session.New())
		m.Start(context.Background())
		c = &chat{id: chatID, machine: m}
		b.chats[chatID] = c
	}
	c.lastSeen = b.now()
	return c
}

// activeChat returns the conversation for chatID once its session has been
// checked. A chat whose session just ended is told so.
func (b *Bot) activeChat(ctx context.Context, chatID int64) *chat {
	c := b.chat(chatID)
	if err := b.verify(ctx, c); err != nil {
		b.notifyEnded(c, err)
	}
	return c
}

// verify checks the chat's session and returns the reason when it ended.
func (b *Bot) verify(ctx context.Context, c *chat) error {
	sess := c.machine.Session()
	if b.opts.Sessions == nil || sess.Current() == nil {
		return nil
	}
	err := b.opts.Sessions.Verify(ctx, sess)
	if err == nil {
		return nil
	}
	if sess.Current() != nil {
		log.Printf("[warn] session check chat=%d: %v", c.id, err)
		return nil
	}
	log.Printf("[info] session ended chat=%d: %v", c.id, err)
	return err
}

func (b *Bot) notifyEnded(c *chat, reason error) {
	b.setStage(c, stageNone)
	if err := b.sendText(c.id, "⚠️ "+escape(reason.Error())); err != nil {
		log.Printf("[warn] notify chat=%d: %v", c.id, err)
	}
}

// Sweep re-checks every chat's session and forgets signed-out chats idle
// longer than the idle timeout.
func (b *Bot) Sweep(ctx context.Context) error {
	b.mu.Lock()
	chats := make([]*chat, 0, len(b.chats))
	for _, c := range b.chats {
		chats = append(chats, c)
	}
	b.mu.Unlock()

	for _, c := range chats {
		if err := b.verify(ctx, c); err != nil {
			b.notifyEnded(c, err)
		}
	}

	if b.opts.IdleTimeout <= 0 {
		return nil
	}
	cutoff := b.now().Add(-b.opts.IdleTimeout)

	b.mu.Lock()
	var stale []*chat
	for id, c := range b.chats {
		if c.lastSeen.Before(cutoff) && c.machine.Session().Current() == nil {
			stale = append(stale, c)
			delete(b.chats, id)
		}
	}
	b.mu.Unlock()

	for _, c := range stale {
		c.machine.Close()
	}
	if len(stale) > 0 {
		log.Printf("[info] swept %d idle chats", len(stale))
	}
	return nil
}

func (b *Bot) setStage(c *chat, stage conversationStage) {
	b.mu.Lock()
	c.stage = stage
	b.mu.Unlock()
}

func (b *Bot) stage(c *chat) conversationStage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.stage
}

// SendReports sends the todo summary to every signed-in chat.
func (b *Bot) SendReports(ctx context.Context) error {
	if b.opts.Reports == nil {
		return nil
	}

	b.mu.Lock()
	chats := make([]*chat, 0, len(b.chats))
	for _, c := range b.chats {
		chats = append(chats, c)
	}
	b.mu.Unlock()

	now := b.now()
	for _, c := range chats {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.verify(ctx, c); err != nil {
			b.notifyEnded(c, err)
			continue
		}
		user := c.machine.Session().Current()
		if user == nil {
			continue
		}
		text, err := b.opts.Reports.Summary(ctx, *user, now)
		if err != nil {
			log.Printf("[warn] build summary for chat %d: %v", c.id, err)
			continue
		}
		if err := b.sendText(c.id, text); err != nil {
			log.Printf("[warn] send summary to %d: %v", c.id, err)
		}
	}
	return nil
}
