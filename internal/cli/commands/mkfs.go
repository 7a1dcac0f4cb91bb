package commands

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"filestore/internal/config"
	"filestore/internal/filestore"
	"filestore/internal/journal"
)

var mkfsConfigPath string

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format a basedir as a new object store",
	RunE:  runMkfs,
}

func init() {
	mkfsCmd.Flags().StringVarP(&mkfsConfigPath, "config", "c", "", "path to store config YAML (required)")
	mkfsCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(mkfsCmd)
}

func runMkfs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(mkfsConfigPath)
	if err != nil {
		return err
	}

	var j filestore.Journal
	if !cfg.FilestoreFakeAttrs && !cfg.FilestoreFakeCollections {
		j = journal.NewFileJournal(cfg.JournalPath, cfg.JournalDIO)
	}

	if err := filestore.Mkfs(cfg.Basedir, j); err != nil {
		return fmt.Errorf("mkfs failed: %w", err)
	}
	log.WithField("basedir", cfg.Basedir).Info("mkfs succeeded")
	fmt.Printf("formatted %s\n", cfg.Basedir)
	return nil
}
