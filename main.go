package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quizbot",
		Short: "Olympiad quiz Telegram bot",
		Long:  `Daily olympiad quiz bot with a leaderboard and Telegram Stars purchases.`,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "config.env", "dotenv file read before the environment")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newImportCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
