package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WINOT/wide.py/internal/protocol"
	"github.com/WINOT/wide.py/internal/transport"
)

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export <target-json>",
	Short: "Ask the server to export the project",
	Long: `Send an export request to the session server. The argument is an
opaque JSON descriptor the server interprets (for example a hosting
target with credentials).

Example:
  wide export '{"host":"ftp.example.com","user":"alice"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&serverURL, "server", "", "session server URL (default: from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	target := json.RawMessage(args[0])
	if !json.Valid(target) {
		return fmt.Errorf("export target is not valid JSON")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	setupLogging(cfg)

	channel, err := transport.Dial(cfg.Server.URL,
		transport.WithHandshakeTimeout(time.Duration(cfg.Server.HandshakeTimeoutMS)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = channel.Close() }()

	if err := channel.Push(protocol.OpExport, protocol.ExportRequest{Target: target}); err != nil {
		return fmt.Errorf("export request failed: %w", err)
	}

	fmt.Println("Export requested")
	return nil
}
