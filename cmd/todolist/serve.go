package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todolist/internal/bot"
	"todolist/internal/config"
	"todolist/internal/repository"
	"todolist/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server, the Telegram bot and the scheduler",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if flagDB != "" {
		cfg.DatabaseURL = flagDB
	}
	if flagAddr != "" {
		cfg.HTTPAddr = flagAddr
	}
	return cfg, err
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil && !errors.Is(err, config.ErrMissingSecret) {
		return fmt.Errorf("config: %w", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", cfg.DatabaseURL)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	a := newApp(cfg, db)
	defer a.close()

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		if telegramBot, err = a.newBot(); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	} else {
		log.Println("[info] TELEGRAM_TOKEN not set, bot disabled")
	}

	scheduler := service.NewSchedulerService(time.Local, 30*time.Second)
	if err := a.schedule(scheduler, telegramBot); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("[info] listening on %s (%s)", cfg.HTTPAddr, cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("bot: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Printf("[warn] %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("[warn] http shutdown: %v", shutdownErr)
	}
	log.Println("Shutdown complete.")
	return err
}
