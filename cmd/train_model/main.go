package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cancersense/config"
	"cancersense/db"
	"cancersense/logging"
	"cancersense/ml"
	"cancersense/pipeline"
)

// maxLoggedIssues caps the rejected records printed after loading.
const maxLoggedIssues = 20

type options struct {
	configPath string
	dataPath   string
	outDir     string
	seed       int64
	testRatio  float64
	recordRun  bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "train_model",
		Short: "Compare candidate classifiers and save the best one",
		Long: `Loads the Wisconsin diagnostic dataset, fits the scaler, trains
Logistic Regression, Random Forest, SVM and a Neural Network on a seeded
split and writes the most accurate model to model.json and scaler.json.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "dataset path, CSV or XLSX (default ml.data_path)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "artifact directory (default ml.artifact_dir)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "split and model seed (default ml.seed)")
	cmd.Flags().Float64Var(&opts.testRatio, "test-ratio", 0, "held-out fraction (default ml.test_ratio)")
	cmd.Flags().BoolVar(&opts.recordRun, "record", true, "append the run to the training log table")
	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.ML.DataPath = opts.dataPath
	}
	if flags.Changed("out") {
		cfg.ML.ArtifactDir = opts.outDir
	}
	if flags.Changed("seed") {
		cfg.ML.Seed = opts.seed
	}
	if flags.Changed("test-ratio") {
		cfg.ML.TestRatio = opts.testRatio
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer logger.Sync()

	cleaner := pipeline.NewDataCleaner(logger)
	dataset, err := pipeline.LoadDataset(cfg.ML.DataPath, cleaner, logger)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	for _, issue := range cleaner.GetIssues(maxLoggedIssues) {
		logger.Warn("rejected record",
			zap.String("rule", issue.Rule),
			zap.Int("line", issue.Line),
			zap.String("id", issue.RecordID),
			zap.String("reason", issue.Message))
	}
	benign, malignant := dataset.Counts()
	logger.Info("training set",
		zap.Int("samples", len(dataset.Features)),
		zap.Int("benign", benign),
		zap.Int("malignant", malignant),
		zap.Int("issues", len(dataset.Issues)))

	result, err := ml.Train(dataset.Features, dataset.Labels, ml.TrainConfig{
		Seed:      cfg.ML.Seed,
		TestRatio: cfg.ML.TestRatio,
	})
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	for _, score := range result.Scores {
		logger.Info("candidate", zap.String("model", score.Name), zap.Float64("accuracy", score.Accuracy))
	}
	eval := result.Evaluation
	logger.Info("selected model",
		zap.String("model", result.Model.Name()),
		zap.Int("train", result.TrainSize),
		zap.Int("test", result.TestSize),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("precision_benign", eval.Benign.Precision),
		zap.Float64("recall_benign", eval.Benign.Recall),
		zap.Float64("f1_benign", eval.Benign.F1),
		zap.Float64("precision_malignant", eval.Malignant.Precision),
		zap.Float64("recall_malignant", eval.Malignant.Recall),
		zap.Float64("f1_malignant", eval.Malignant.F1))

	trainedAt := time.Now().UTC()
	if err := ml.SaveArtifacts(cfg.ML.ArtifactDir, result, trainedAt); err != nil {
		return fmt.Errorf("failed to save artifacts: %w", err)
	}
	logger.Info("artifacts saved", zap.String("dir", cfg.ML.ArtifactDir))

	if opts.recordRun {
		if err := recordRun(cmd.Context(), cfg, logger, result, len(dataset.Features), trainedAt); err != nil {
			// the artifacts are already written
			logger.Warn("training run not recorded", zap.Error(err))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s saved to %s (accuracy %.4f)\n",
		result.Model.Name(), cfg.ML.ArtifactDir, eval.Accuracy)
	return nil
}

func recordRun(ctx context.Context, cfg *config.Config, logger *zap.Logger, result *ml.TrainingResult, samples int, trainedAt time.Time) error {
	store, err := db.Open(db.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}, logger.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.LogTraining(ctx, db.TrainingEntry{
		ModelName:  result.Model.Name(),
		Accuracy:   result.Evaluation.Accuracy,
		Precision:  result.Evaluation.Malignant.Precision,
		Recall:     result.Evaluation.Malignant.Recall,
		F1:         result.Evaluation.Malignant.F1,
		DataPoints: samples,
		TrainedAt:  trainedAt,
	})
	return err
}
