package main

import (
	"fmt"
	"os"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/logger"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import questions from a bulk text file",
		Long:  `Import questions written in the Q:/A)/ANS: block format, one block per question.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("import")
	pg, err := openPostgres(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer pg.Close()

	report, err := quiz.Import(cmd.Context(), pg, string(raw))
	if report != nil {
		for _, e := range report.Errors {
			log.Warn("block skipped", "block", e.Block, "error", e.Err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added: %d, duplicates: %d, errors: %d\n",
			report.Added, report.Duplicates, len(report.Errors))
	}
	return err
}
