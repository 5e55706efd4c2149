package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/training"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/models"
)

type TrainOptions struct {
	SpecFile   string
	Epochs     int
	OutputFile string
	SaveFormat string
	Quiet      bool
}

func NewTrainCmd() *cobra.Command {
	opts := &TrainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a recurrent network from a training spec",
		Long: `Train a recurrent network on a generated dataset. The spec file names the
dataset, the layer stack and the optimizer; the trained model can be written
to a snapshot file for later evaluation.`,
		Example: `  # Train and keep the result in memory
  seqnet train --spec train.yaml

  # Train for extra epochs and snapshot the weights
  seqnet train --spec train.yaml --epochs 20 --output model.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.SpecFile, "spec", "", "Training spec file (YAML or JSON)")
	cmd.Flags().IntVar(&opts.Epochs, "epochs", 0, "Override the number of epochs in the spec")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "", "Snapshot file for the trained model")
	cmd.Flags().StringVarP(&opts.SaveFormat, "save-format", "F", "", "Snapshot format (json, xml, binary)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Suppress per-epoch progress")
	cmd.MarkFlagRequired("spec")

	return cmd
}

func runTrain(cmd *cobra.Command, opts *TrainOptions) error {
	spec, err := training.LoadTrainingSpec(opts.SpecFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("epochs") {
		spec.Epochs = opts.Epochs
	}
	epochs := spec.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	logger := newLogger()
	ds, err := generateForSpec(cmd, logger, spec.Dataset)
	if err != nil {
		return err
	}

	model, err := training.BuildModel(spec.Model)
	if err != nil {
		return err
	}
	model.SetLogger(logger)

	opt, err := training.BuildOptimizer(spec.Optimizer)
	if err != nil {
		return err
	}
	if withLogger, ok := opt.(interface{ SetLogger(*logrus.Logger) }); ok {
		withLogger.SetLogger(logger)
	}

	cmd.Printf("Training %s on %s (%d sequences, %d steps, %d parameters)\n",
		modelTypeName(spec.Model), ds.Info.Type, ds.Info.Columns, ds.Info.Steps, model.NumParameters())

	start := time.Now()
	objective := 0.0
	for epoch := 1; epoch <= epochs; epoch++ {
		objective, err = model.Train(cmd.Context(), ds.Inputs, ds.Targets, opt)
		if err != nil {
			return fmt.Errorf("epoch %d failed: %w", epoch, err)
		}
		if !opts.Quiet {
			cmd.Printf("Epoch %d/%d  objective %.6f\n", epoch, epochs, objective)
		}
	}

	metrics := models.TrainingMetrics{
		FinalObjective: objective,
		Epochs:         epochs,
		Duration:       time.Since(start),
	}
	if err := training.Score(model, ds, &metrics); err != nil {
		return err
	}

	cmd.Printf("\nTraining finished in %s\n", metrics.Duration.Round(time.Millisecond))
	cmd.Printf("Final objective: %.6f\n", metrics.FinalObjective)
	printTaskMetric(cmd, ds.Info.Type, metrics)

	if opts.OutputFile != "" {
		format := opts.SaveFormat
		if format == "" {
			format = spec.SaveFormat
		}
		if format == "" {
			format = constants.FormatJSON
		}
		if err := saveSnapshot(model, opts.OutputFile, format); err != nil {
			return err
		}
		cmd.Printf("Model saved to %s (%s)\n", opts.OutputFile, format)
	}
	return nil
}

// generateForSpec builds the generator for the spec and produces the dataset.
func generateForSpec(cmd *cobra.Command, logger *logrus.Logger, spec models.DatasetSpec) (*datasets.Dataset, error) {
	factory := datasets.NewFactory(logger)
	generator, err := factory.CreateGenerator(spec.Type)
	if err != nil {
		return nil, err
	}
	if err := generator.ValidateParameters(spec); err != nil {
		return nil, err
	}
	return generator.Generate(cmd.Context(), spec)
}

func saveSnapshot(model training.Model, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := model.Save(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func modelTypeName(spec models.ModelSpec) string {
	if spec.Type == "" {
		return constants.ModelTypeRNN
	}
	return spec.Type
}

// printTaskMetric reports the metric that matches the dataset family.
func printTaskMetric(cmd *cobra.Command, datasetType string, m models.TrainingMetrics) {
	switch datasetType {
	case constants.DatasetTypeNoisySines:
		cmd.Printf("Classification error: %.4f\n", m.ClassificationError)
	case constants.DatasetTypeDistractedSequence:
		cmd.Printf("Sequence recall error: %.4f\n", m.RecallError)
	case constants.DatasetTypeNoisySineSeries:
		cmd.Printf("One-step-ahead error: %.4f\n", m.RegressionError)
	}
}
