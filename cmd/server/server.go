package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matryer/way"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zucenko/rescuegrid/config"
	"github.com/zucenko/rescuegrid/server"
)

type Server struct {
	router *way.Router
	Rescue *server.RescueServer
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalln(err)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	var watch bool
	cmd := &cobra.Command{
		Use:          "rescuegrid",
		Short:        "Multi-agent disaster rescue grid simulation",
		Long:         "Without a subcommand rescuegrid runs the HTTP service, as serve does.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, watch)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level from the config")
	cmd.Flags().BoolVar(&watch, "watch-config", true, "reload mission defaults when the config file changes")
	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(simulateCmd(opts))
	return cmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rescue grid HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch-config", true, "reload mission defaults when the config file changes")
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Log.Apply(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func NewServer(cfg *config.Config) (*Server, error) {
	rs, err := server.NewRescueServer(cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{Rescue: rs}
	s.routes()
	return s, nil
}

func runServe(opts *rootOptions, watch bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}
	defer s.Rescue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go s.Rescue.Hub.Loop(ctx)

	if watch && opts.configPath != "" {
		w, err := config.NewWatcher(opts.configPath)
		if err != nil {
			return err
		}
		w.OnChange(func(next *config.Config) {
			s.Rescue.SetDefaults(next.Mission)
			if opts.logLevel == "" {
				if err := next.Log.Apply(); err != nil {
					log.WithError(err).Warn("keeping previous log settings")
				}
			}
		})
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.handler(cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("rescue grid listening")
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
