package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/council/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Model Context Protocol server",
	Long: `Exposes councils to MCP clients. The stdio transport suits editors and agent
hosts that spawn the server; sse listens on a port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		if transport != "stdio" && transport != "sse" {
			return fmt.Errorf("unknown transport %q: use stdio or sse", transport)
		}

		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(s)
		if err != nil {
			return err
		}
		opts, err := buildFlags(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := build(ctx, s, logger, opts)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := st.shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown incomplete", "err", err)
			}
		}()

		srv := mcp.NewServer(st.manager, mcp.WithLogger(logger))
		if transport == "sse" {
			return srv.ServeSSE(ctx, addr)
		}
		logger.Info("MCP server on stdio")
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "localhost:8080", "Address to listen on (only for SSE)")
	addBuildFlags(mcpCmd)
}
