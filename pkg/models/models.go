package models

import (
	"time"
)

// DatasetSpec describes a synthetic dataset to generate.
type DatasetSpec struct {
	Type       string                 `json:"type" yaml:"type"`
	Name       string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Seed       int64                  `json:"seed,omitempty" yaml:"seed,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// LayerSpec describes a single layer of a network.
type LayerSpec struct {
	Type string `json:"type" yaml:"type"`
	// In and Out are the declared input and output sizes. Shape-preserving
	// layers (identity, sigmoid, log_softmax, dropout) leave them zero.
	In  int `json:"in,omitempty" yaml:"in,omitempty"`
	Out int `json:"out,omitempty" yaml:"out,omitempty"`
	// Ratio is the dropout ratio for dropout layers.
	Ratio float64 `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	// Rho is the unroll limit for recurrent wrapper layers.
	Rho int `json:"rho,omitempty" yaml:"rho,omitempty"`
}

// ModelSpec describes a recurrent model architecture.
type ModelSpec struct {
	Type   string      `json:"type" yaml:"type"`
	Rho    int         `json:"rho" yaml:"rho"`
	Single bool        `json:"single,omitempty" yaml:"single,omitempty"`
	Loss   string      `json:"loss,omitempty" yaml:"loss,omitempty"`
	Seed   int64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	Layers []LayerSpec `json:"layers" yaml:"layers"`
}

// OptimizerSpec describes the optimizer used for training.
type OptimizerSpec struct {
	Type          string  `json:"type" yaml:"type"`
	StepSize      float64 `json:"step_size,omitempty" yaml:"step_size,omitempty"`
	BatchSize     int     `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxIterations int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Tolerance     float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Alpha         float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Beta1         float64 `json:"beta1,omitempty" yaml:"beta1,omitempty"`
	Beta2         float64 `json:"beta2,omitempty" yaml:"beta2,omitempty"`
	Epsilon       float64 `json:"epsilon,omitempty" yaml:"epsilon,omitempty"`
	NoShuffle     bool    `json:"no_shuffle,omitempty" yaml:"no_shuffle,omitempty"`
}

// TrainingSpec binds a dataset, a model and an optimizer into one training run.
type TrainingSpec struct {
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	Dataset   DatasetSpec   `json:"dataset" yaml:"dataset"`
	Model     ModelSpec     `json:"model" yaml:"model"`
	Optimizer OptimizerSpec `json:"optimizer" yaml:"optimizer"`
	// Epochs is the number of passes over the dataset; each pass invokes the
	// optimizer once with its full iteration budget.
	Epochs int `json:"epochs,omitempty" yaml:"epochs,omitempty"`
	// TestFraction is the fraction of sequences held out for evaluation.
	TestFraction float64 `json:"test_fraction,omitempty" yaml:"test_fraction,omitempty"`
	// SaveFormat selects the snapshot format when the trained model is stored.
	SaveFormat string `json:"save_format,omitempty" yaml:"save_format,omitempty"`
}

// TrainingMetrics captures the outcome of a training run.
type TrainingMetrics struct {
	FinalObjective      float64       `json:"final_objective"`
	ClassificationError float64       `json:"classification_error,omitempty"`
	RecallError         float64       `json:"recall_error,omitempty"`
	RegressionError     float64       `json:"regression_error,omitempty"`
	Epochs              int           `json:"epochs"`
	Duration            time.Duration `json:"duration"`
}

// Job represents a unit of asynchronous work handled by the training processor.
type Job struct {
	ID          string                 `json:"id" yaml:"id,omitempty"`
	Type        string                 `json:"type" yaml:"type"`
	Status      string                 `json:"status" yaml:"-"`
	Spec        TrainingSpec           `json:"spec" yaml:"spec"`
	Result      map[string]interface{} `json:"result,omitempty" yaml:"-"`
	Error       string                 `json:"error,omitempty" yaml:"-"`
	CreatedAt   time.Time              `json:"created_at" yaml:"-"`
	StartedAt   *time.Time             `json:"started_at,omitempty" yaml:"-"`
	CompletedAt *time.Time             `json:"completed_at,omitempty" yaml:"-"`
}

// JobFile is the on-disk format consumed by the worker binary.
type JobFile struct {
	Jobs []Job `json:"jobs" yaml:"jobs"`
}

// DatasetInfo summarizes a generated dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	Steps     int       `json:"steps"`
	Seed      int64     `json:"seed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelVersion describes one stored snapshot of a registered model.
type ModelVersion struct {
	ID        string    `json:"id"`
	ModelID   string    `json:"model_id"`
	Format    string    `json:"format"`
	Location  string    `json:"location"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelInfo describes a registered model and its stored versions.
type ModelInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Versions    []ModelVersion    `json:"versions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// StorageInfo describes an artifact store backend.
type StorageInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
