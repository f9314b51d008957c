package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/WINOT/wide.py/internal/session"
	"github.com/WINOT/wide.py/internal/surface"
	"github.com/WINOT/wide.py/internal/transport"
	"github.com/WINOT/wide.py/internal/tree"
)

var (
	serverURL  string
	mirrorPath string
	intervalMS int
)

// editCmd represents the edit command.
var editCmd = &cobra.Command{
	Use:   "edit <file>",
	Short: "Edit a project file in a collaborative session",
	Long: `Open a project file in a collaborative editing session.

The remote file is mirrored into a local file; edit that file with any
editor and your changes are pushed to the server on the sync interval.
Changes from other participants are merged into the mirror as they
arrive.

Example:
  wide edit /src/main.py
  wide edit /src/main.py --mirror ./main.py
  wide edit /src/main.py --interval 500`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&serverURL, "server", "", "session server URL (default: from config)")
	editCmd.Flags().StringVar(&mirrorPath, "mirror", "", "local mirror file (default: file name under editor.mirror_dir)")
	editCmd.Flags().IntVar(&intervalMS, "interval", 0, "sync interval in milliseconds (default: from config)")
}

func runEdit(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if intervalMS != 0 {
		cfg.Sync.IntervalMS = intervalMS
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("server", cfg.Server.URL).
		Str("file", file).
		Msg("starting wide")

	channel, err := transport.Dial(cfg.Server.URL,
		transport.WithHandshakeTimeout(time.Duration(cfg.Server.HandshakeTimeoutMS)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = channel.Close() }()

	mirror := mirrorPath
	if mirror == "" {
		dir := cfg.Editor.MirrorDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "wide")
		}
		mirror = filepath.Join(dir, filepath.Base(file))
	}

	// The surface is created before the session, so the edit callback
	// reaches the session through the variable rather than a bound method.
	var sess *session.Session
	display, err := surface.New(mirror, func() {
		if s := sess; s != nil {
			s.NotifyEdit()
		}
	}, surface.WithDebounce(time.Duration(cfg.Editor.DebounceMS)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to create mirror surface: %w", err)
	}
	defer func() { _ = display.Close() }()

	sess = session.New(channel, display, tree.New(), session.Config{
		FlushInterval: time.Duration(cfg.Sync.IntervalMS) * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	// Forward unsolicited server pushes into the session loop.
	go func() {
		for msg := range channel.Inbound() {
			sess.Deliver(msg)
		}
	}()

	sess.Select(file)

	fmt.Printf("Editing %s\n", file)
	fmt.Printf("Open %s in your editor; changes sync every %dms\n", mirror, cfg.Sync.IntervalMS)

	sess.Run(ctx)

	log.Info().Msg("wide stopped")
	return nil
}
