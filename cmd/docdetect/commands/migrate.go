package commands

import (
	"fmt"

	"docdetect/internal/repository/sqlite"
	"docdetect/internal/service/storage"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Record existing screenshots in the capture database",
	Long: `Scan the screenshot directory for {label}_{index}_{timestamp}.png files
and add the ones the capture database does not know yet. Running it again
adds nothing.`,
	Example: `  docdetect migrate
  SCREENSHOT_DIR=/data/shots DB_PATH=/data/captures.db docdetect migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := consoleLogger(cfg)

	log.Info("Migrating screenshots from %s to database %s", cfg.ScreenshotDir, cfg.DBPath)

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	repo := sqlite.NewCaptureRepository(db)

	result, err := storage.Reindex(cfg.ScreenshotDir, repo, log)
	if err != nil {
		return err
	}

	log.Info("Added %d, already present %d, skipped %d", result.Added, result.Existed, result.Skipped)

	total, err := repo.GetTotalCount()
	if err == nil {
		log.Info("Database now holds %d captures", total)
	}
	byLabel, err := repo.GetCountByLabel()
	if err == nil {
		for label, count := range byLabel {
			log.Info("  %s: %d", label, count)
		}
	}
	return nil
}
