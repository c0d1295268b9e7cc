package cmd

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TFMV/ontograph/backend"
	"github.com/TFMV/ontograph/config"
	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/metrics"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/TFMV/ontograph/pkg/logging"
	"github.com/TFMV/ontograph/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		port       int
		dataset    string
		backendURL string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graph sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if dataset != "" {
				cfg.Dataset = dataset
			}
			if backendURL != "" {
				cfg.Backend.BaseURL = backendURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level := cfg.Logging.Level
			if opts.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			var collector *metrics.Collector
			if cfg.Metrics.Enabled {
				collector = metrics.NewCollector()
			}
			svc, err := resourceService(cfg, logger, collector)
			if err != nil {
				return err
			}

			srvOpts := []server.Option{server.WithLogger(logger)}
			if collector != nil {
				srvOpts = append(srvOpts, server.WithMetrics(collector))
			}
			srv, err := server.New(cfg, svc, srvOpts...)
			if err != nil {
				return err
			}

			if cfg.Path != "" {
				w, err := config.NewWatcher(cfg, config.DefaultDebounce, logger)
				if err != nil {
					return err
				}
				defer w.Stop()
				w.OnChange(srv.ApplyConfig)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			brand.Fprintf(cmd.ErrOrStderr(), "ontograph %s", version)
			subtle.Fprintf(cmd.ErrOrStderr(), " listening on %s\n", cfg.Server.Addr())
			if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			good.Fprintln(cmd.ErrOrStderr(), "stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on, overriding the configuration")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Serve resources from a local dataset file")
	cmd.Flags().StringVar(&backendURL, "backend", "", "Base URL of the resource backend")
	return cmd
}

// resourceService picks the local dataset when one is configured and the
// HTTP backend otherwise.
func resourceService(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (explore.ResourceService, error) {
	if cfg.Dataset != "" {
		path := cfg.Resolve(cfg.Dataset)
		ds, err := ingest.LoadDataset(path)
		if err != nil {
			return nil, err
		}
		logger.Info("serving dataset",
			zap.String("path", path),
			zap.Int("triples", len(ds.Triples)))
		return ds, nil
	}
	if cfg.Backend.BaseURL == "" {
		return nil, apperrors.NewValidation("no resource source: set dataset or backend.base_url")
	}

	var clientOpts []backend.Option
	if collector != nil {
		clientOpts = append(clientOpts, backend.WithObserver(collector.ObserveFetch))
	}
	logger.Info("using backend", zap.String("base_url", cfg.Backend.BaseURL))
	return backend.NewClient(cfg.Backend, logger, clientOpts...), nil
}
