package main

import (
	"github.com/BatmanBruc/olymp-quiz-bot/internal/logger"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateUp,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE:  runMigrateStatus,
		},
	)
	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("migrate")
	pg, err := openPostgres(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(cmd.Context()); err != nil {
		log.Error("migration failed", "error", err)
		return err
	}
	log.Info("migrations applied")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	pg, err := openPostgres(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer pg.Close()
	return pg.MigrationStatus(cmd.Context())
}
