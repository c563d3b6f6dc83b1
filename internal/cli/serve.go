package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DHARANI2D/AEGIS/internal/server"
)

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8530, "HTTP listen port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the governance API server",
	Long: "Runs aegis as a central governance server over HTTP.\n" +
		"Agents submit intents to POST /evaluate and receive verdicts.\n" +
		"Supports hot-reload of the rule table file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	gov, cleanup, err := openStack()
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(gov, server.Config{Port: servePort, RulesPath: flagRules})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down governance server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if flagRules != "" {
		reloader, err := server.NewReloader(srv, []string{flagRules})
		if err != nil {
			log.Warn().Err(err).Msg("hot-reload disabled")
		} else {
			g.Go(func() error { return reloader.Run(ctx) })
			log.Info().Str("rules", flagRules).Msg("rule table loaded, hot-reload enabled")
		}
	}

	return g.Wait()
}
