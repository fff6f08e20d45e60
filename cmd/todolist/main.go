// Package main implements the todolist server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "todolist",
	Short:        "Todo list web app and Telegram bot",
	SilenceUsage: true,
}

var (
	flagAddr string
	flagDB   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides DATABASE_URL)")
}
