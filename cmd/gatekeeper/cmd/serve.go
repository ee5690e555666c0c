package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/api"
	"github.com/wardstone/gatekeeper/internal/core/auth"
	"github.com/wardstone/gatekeeper/internal/core/config"
	"github.com/wardstone/gatekeeper/internal/core/server"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the expiration sweep ticker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP server host")
	serveCmd.Flags().Int("port", 0, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	if cmd.Flags().Changed("host") {
		svc.cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		svc.cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	authenticator := auth.NewAuthenticator(config.APIKeys())
	if !authenticator.Enabled() {
		svc.logger.Warn("no API keys configured, authentication disabled (set GK_API_KEY)")
	}

	handler := api.NewHandler(svc.rules, svc.gate, svc.router, svc.quota, svc.logger)
	e := api.NewEcho(handler, authenticator.Middleware())
	httpServer := server.NewHTTPServer(e, svc.cfg.Server, svc.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.sweeper.Run(ctx, svc.cfg.Approval.SweepInterval)

	svc.logger.Info("starting gatekeeper",
		zap.String("version", Version),
		zap.String("host", svc.cfg.Server.Host),
		zap.Int("port", svc.cfg.Server.Port))

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		svc.logger.Info("shutting down gracefully")
		cancel()
		return httpServer.Shutdown(context.Background())
	}
}
