package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"filestore/internal/config"
	"filestore/internal/filestore"
	"filestore/internal/journal"
)

var mountConfigPath string

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount a store and serve its sync loop in the foreground until interrupted",
	RunE:  runMount,
}

func init() {
	mountCmd.Flags().StringVarP(&mountConfigPath, "config", "c", "", "path to store config YAML (required)")
	mountCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(mountConfigPath)
	if err != nil {
		return err
	}

	opts := filestore.MountOptions{
		ForceBracket: cfg.FilestoreBtrfsTrans,
		MinSync:      cfg.MinSyncInterval(),
		MaxSync:      cfg.MaxSyncInterval(),
	}
	if !cfg.FilestoreFakeAttrs && !cfg.FilestoreFakeCollections {
		opts.Journal = journal.NewFileJournal(cfg.JournalPath, cfg.JournalDIO)
	}

	store, err := filestore.Mount(cfg.Basedir, opts)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	fmt.Printf("mounted %s\n", cfg.Basedir)

	// This handler races with the store's own signal-safe barrier, which
	// (when the Bracket backend is in play) may exit the process first if
	// no transaction is in flight. When it doesn't, this is the graceful
	// path: stop the sync loop and release the fsid lock before exiting.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("mount: received shutdown signal, unmounting")
	if err := store.Umount(); err != nil {
		return fmt.Errorf("umount failed: %w", err)
	}
	fmt.Println("unmounted cleanly")
	return nil
}
