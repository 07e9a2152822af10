package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cancersense/config"
	"cancersense/db"
	chttp "cancersense/http"
	"cancersense/logging"
	"cancersense/ml"
	"cancersense/report"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	port       int

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cancersense",
	Short: "Breast cancer prediction service",
	Long: `CancerSense serves predictions from a trained breast cancer classifier,
keeps a per-user prediction history and renders PDF/XLSX reports.

Train a model first with train_model, then run "cancersense serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err = logging.New(logging.Options{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Http.Port = port
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var checkModelCmd = &cobra.Command{
	Use:   "check-model",
	Short: "Load the model artifacts and verify the reference prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		predictor, err := ml.NewPredictor(cfg.ML.ArtifactDir)
		if err != nil {
			return err
		}
		ref, _ := predictor.Reference()
		fmt.Fprintf(cmd.OutOrStdout(), "model %q OK (reference: %s, p(malignant)=%.6f)\n",
			predictor.ModelName(), ref.Label, ref.ProbMalignant)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "override http.port")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkModelCmd)
}

func serve(ctx context.Context) error {
	predictor, err := ml.NewPredictor(cfg.ML.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to load model from %s: %w", cfg.ML.ArtifactDir, err)
	}
	logger.Info("model loaded", zap.String("model", predictor.ModelName()), zap.String("dir", cfg.ML.ArtifactDir))

	store, err := db.Open(db.Options{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		UserCacheSize: cfg.Database.UserCacheSize,
	}, logger.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("auth.jwt_secret is empty, using a per-process secret; sessions end on restart")
	}
	sessions, err := chttp.NewSessionManager(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	api := chttp.NewAPI(predictor, store, sessions, report.NewRenderer(cfg.Report.Title), logger.Named("http"))
	server := chttp.NewServer(chttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, api, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("exiting")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
