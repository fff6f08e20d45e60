package main

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"todolist/internal/bot"
	"todolist/internal/config"
	"todolist/internal/identity"
	"todolist/internal/repository"
	"todolist/internal/service"
	"todolist/internal/session"
	"todolist/internal/view"
	"todolist/internal/web"
)

// app holds every long-lived component of a running server.
type app struct {
	cfg config.Config

	provider  *identity.Local
	auth      *service.AuthService
	profiles  *service.ProfileService
	tasks     *service.TaskService
	reminders *service.ReminderService

	registry *web.Registry
	handler  *web.Handler
}

func newApp(cfg config.Config, db *gorm.DB) *app {
	provider := identity.NewLocal(db, identity.Options{
		Secret:     cfg.SessionSecret,
		SessionTTL: cfg.SessionTTL,
		Mailer:     newMailer(cfg),
		ResetURL:   cfg.PublicURL + "/reset/",
	})

	var federation identity.Federation
	if cfg.GoogleEnabled() {
		federation = identity.NewGoogleFederation(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL())
	}

	profiles := service.NewProfileService(repository.NewProfileRepository(db))
	tasks := service.NewTaskService(repository.NewTaskRepository(db))

	a := &app{
		cfg:       cfg,
		provider:  provider,
		auth:      service.NewAuthService(provider, federation, profiles),
		profiles:  profiles,
		tasks:     tasks,
		reminders: service.NewReminderService(tasks, profiles),
	}
	a.registry = web.NewRegistry(a.newMachine, cfg.ClientIdleTimeout)
	a.handler = web.NewHandler(web.Options{
		Auth:          a.auth,
		Registry:      a.registry,
		Secret:        cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: strings.HasPrefix(cfg.PublicURL, "https://"),
	})
	return a
}

func newMailer(cfg config.Config) identity.Mailer {
	if cfg.SMTPAddr == "" {
		log.Println("[info] SMTP_ADDR not set, password reset mails go to the log")
		return identity.LogMailer{}
	}
	return identity.SMTPMailer{
		Addr:     cfg.SMTPAddr,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
}

func (a *app) newMachine(sess *session.Context) *view.Machine {
	return view.New(view.Options{
		Session:             sess,
		Auth:                a.auth,
		Profiles:            a.profiles,
		Tasks:               a.tasks,
		SignUpRedirectDelay: a.cfg.SignUpRedirectDelay,
	})
}

func (a *app) newBot() (*bot.Bot, error) {
	return bot.New(a.cfg.TelegramToken, a.botOptions())
}

func (a *app) botOptions() bot.Options {
	return bot.Options{
		NewMachine:    bot.MachineFactory(a.newMachine),
		Reports:       a.reminders,
		Sessions:      a.auth,
		IdleTimeout:   a.cfg.ClientIdleTimeout,
		PublicURL:     a.cfg.PublicURL,
		GoogleEnabled: a.cfg.GoogleEnabled(),
	}
}

// schedule registers housekeeping and, when a bot runs, the chat sweep and
// reports.
func (a *app) schedule(scheduler *service.SchedulerService, telegramBot *bot.Bot) error {
	if _, err := scheduler.ScheduleInterval("purge-expired", a.cfg.CleanupInterval, a.purgeExpired); err != nil {
		return err
	}
	if _, err := scheduler.ScheduleInterval("sweep-clients", a.cfg.CleanupInterval, a.registry.Sweep); err != nil {
		return err
	}

	if telegramBot == nil {
		return nil
	}
	if _, err := scheduler.ScheduleInterval("sweep-chats", a.cfg.CleanupInterval, telegramBot.Sweep); err != nil {
		return err
	}
	switch {
	case a.cfg.ReportAt != "":
		if _, err := scheduler.ScheduleDaily("reports", a.cfg.ReportAt, telegramBot.SendReports); err != nil {
			return err
		}
		log.Printf("[info] daily reports at %s", a.cfg.ReportAt)
	case a.cfg.ReportInterval > 0:
		if _, err := scheduler.ScheduleInterval("reports", a.cfg.ReportInterval, telegramBot.SendReports); err != nil {
			return err
		}
		log.Printf("[info] reports every %s", a.cfg.ReportInterval)
	}
	return nil
}

func (a *app) purgeExpired(ctx context.Context) error {
	sessions, resets, err := a.provider.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if sessions > 0 || resets > 0 {
		log.Printf("[info] purged %d sessions and %d reset tokens", sessions, resets)
	}
	return nil
}

func (a *app) close() {
	a.registry.Close()
}

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second
