package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/mailcore/internal/mcp"
	"github.com/brandon/mailcore/internal/tools"
)

// Version is set via ldflags at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "mailcore",
	Short:         "Webmail IMAP core served over MCP",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailcore version %s\n", Version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mail tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mcp.Version = Version
		server := mcp.NewServer(tools.NewRegistry(a.manager, a.logger), a.logger)

		// Set up signal handling for graceful shutdown
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Run(ctx, os.Stdin, os.Stdout)
		}()

		// Wait for shutdown signal or the end of input
		select {
		case sig := <-sigChan:
			a.logger.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case err := <-errChan:
			if err != nil {
				a.logger.WithError(err).Error("Server error")
				return err
			}
		}

		a.logger.Info("Shutting down mailcore")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, foldersCmd, messagesCmd, credentialsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("mailcore failed")
		os.Exit(1)
	}
}
