package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WINOT/wide.py/internal/protocol"
	"github.com/WINOT/wide.py/internal/transport"
	"github.com/WINOT/wide.py/internal/tree"
)

// treeCmd represents the tree command.
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "List the files of the remote project",
	Long: `Request the project file listing from the session server and print
it, directories suffixed with a slash.`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringVar(&serverURL, "server", "", "session server URL (default: from config)")
}

func runTree(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := channel.Request(ctx, protocol.OpTree, nil)
	if err != nil {
		return fmt.Errorf("tree request failed: %w", err)
	}

	var result protocol.TreeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("malformed tree response: %w", err)
	}

	tr := tree.New()
	for _, node := range result.Nodes {
		tr.AddNode(node.Node, node.IsDir)
	}
	fmt.Print(tr.Render())
	return nil
}
