package website

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"git.handmade.network/hmn/discuss/src/config"
	"git.handmade.network/hmn/discuss/src/jobs"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/perf"
	"github.com/spf13/cobra"
)

var configPath string

var DiscussCommand = &cobra.Command{
	Use:   "discuss",
	Short: "Run the threaded discussion service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configPath); err != nil {
			return err
		}
		return logging.SetLevel(config.Config.LogLevel)
	},
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Str("env", string(config.Config.Env)).Msg("Starting discuss")

		app, err := NewApp(context.Background())
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start")
		}
		defer app.Close()

		var wg sync.WaitGroup

		perfCollector := perf.RunPerfCollector()

		// Start background jobs
		wg.Add(1)
		backgroundJobs := append(jobs.Jobs{perfCollector.Job}, app.StartJobs()...)

		// Create HTTP server
		wg.Add(1)
		server := http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(app.Service, perfCollector),
		}
		go func() {
			logging.Info().Str("addr", config.Config.Addr).Msg("Serving the API")
			serverErr := server.ListenAndServe()
			if !errors.Is(serverErr, http.ErrServerClosed) {
				logging.Error().Err(serverErr).Msg("Server shut down unexpectedly")
			}
			// The wg.Done() happens in the shutdown logic below.
		}()

		// Start up the private HTTP server for debug routes.
		go func() {
			// We don't bother to gracefully shut this down.
			err := http.ListenAndServe(config.Config.PrivateAddr, NewPrivateRoutes(app.Service, perfCollector))
			logging.Warn().Err(err).Msg("Private server stopped")
		}()

		// Wait for SIGINT in the background and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-signals // First signal (start shutdown)
			logging.Info().Msg("Shutting down discuss")

			const timeout = 10 * time.Second

			go func() {
				logging.Info().Msg("Shutting down background jobs...")
				unfinished := backgroundJobs.CancelAndWait(timeout)
				if len(unfinished) == 0 {
					logging.Info().Msg("Background jobs closed gracefully")
				} else {
					logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
				}
				wg.Done()
			}()

			// Gracefully shut down the HTTP server
			go func() {
				timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				err := server.Shutdown(timeoutCtx)
				if err != nil {
					logging.Warn().Err(err).Msg("Server did not shut down gracefully")
				}
				wg.Done()
			}()

			<-signals // Second signal (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed discuss")
			os.Exit(1)
		}()

		// Wait for all of the above to finish, then exit
		wg.Wait()
	},
}

func init() {
	DiscussCommand.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	reconcileCommand := &cobra.Command{
		Use:   "reconcile",
		Short: "Fix every stored vote count that disagrees with its votes, then exit",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			app, err := NewApp(ctx)
			if err != nil {
				logging.Fatal().Err(err).Msg("failed to start")
			}
			defer app.Close()

			// Other processes need to hear about the fixed counts.
			if bus := app.StartBus(); bus != nil {
				defer jobs.Jobs{bus}.CancelAndWait(5 * time.Second)
				waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := app.WaitForBus(waitCtx)
				cancel()
				if err != nil {
					logging.Warn().Err(err).Msg("Invalidation bus is not connected; other processes may serve stale counts")
				}
			}

			fixed, err := app.Service.ReconcileDrifted(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("reconciliation failed")
				return
			}
			logging.Info().Int("fixed", fixed).Msg("Reconciled vote counts")
		},
	}
	DiscussCommand.AddCommand(reconcileCommand)
}
