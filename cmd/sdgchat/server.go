package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/api"
	"github.com/sdgteacher/sdgchat/internal/devserver"
	"github.com/sdgteacher/sdgchat/internal/profile"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an offline stand-in for the chat backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.DevServer.Port
		}
		return runDevServer(cmd.Context(), port)
	},
}

func runDevServer(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("a backend is already running on port %d", port)
		return fmt.Errorf("server already running on port %d", port)
	}

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    addr,
		Handler: devserver.NewHandler(devserver.Deps{KV: kv}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("Development backend listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		printStep("Shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve local profiles and environment memory over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kv, err := openKV(ctx, cfg)
		if err != nil {
			return err
		}
		defer kv.Close()

		ex, err := loadExtractor(cfg)
		if err != nil {
			return err
		}

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Profiles:  profile.NewManager(kv),
			Extractor: ex,
		})
		slog.Info("MCP server started (stdio transport)")
		return server.NewStdioServer(mcpSrv).Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	devserverCmd.Flags().Int("port", 0, "port to listen on (default devserver.port)")
}
