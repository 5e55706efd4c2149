package constants

import "time"

// Application constants
const (
	AppName        = "seqnet"
	AppDescription = "Recurrent Network Training Toolkit for Sequence Data"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default server configuration
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	MaxRequestSize         = 16 * 1024 * 1024 // 16MB

	// Training defaults
	DefaultStepSize      = 0.001
	DefaultBatchSize     = 32
	DefaultMaxIterations = 10000
	DefaultTolerance     = 1e-5
	DefaultRho           = 10
	DefaultHiddenSize    = 16

	// Worker defaults
	DefaultWorkerConcurrency = 4
	DefaultQueueSize         = 64
	DefaultJobTimeout        = 30 * time.Minute

	// Storage defaults
	DefaultStorageTimeout = 30 * time.Second
	DefaultCacheTTL       = 24 * time.Hour

	// Metrics defaults
	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

// Dataset generator types
const (
	DatasetTypeNoisySines         = "noisy_sines"
	DatasetTypeDistractedSequence = "distracted_sequence"
	DatasetTypeNoisySineSeries    = "noisy_sine_series"
	DatasetTypeCharSequences      = "char_sequences"
)

// Model types
const (
	ModelTypeRNN  = "rnn"
	ModelTypeBRNN = "brnn"
)

// Layer types
const (
	LayerTypeIdentity     = "identity"
	LayerTypeLinear       = "linear"
	LayerTypeLinearNoBias = "linear_no_bias"
	LayerTypeAdd          = "add"
	LayerTypeSigmoid      = "sigmoid"
	LayerTypeLogSoftMax   = "log_softmax"
	LayerTypeDropout      = "dropout"
	LayerTypeRecurrent    = "recurrent"
	LayerTypeLSTM         = "lstm"
	LayerTypeFastLSTM     = "fast_lstm"
	LayerTypeGRU          = "gru"
)

// Loss types
const (
	LossMeanSquaredError      = "mean_squared_error"
	LossNegativeLogLikelihood = "negative_log_likelihood"
)

// Optimizer types
const (
	OptimizerSGD     = "sgd"
	OptimizerRMSProp = "rmsprop"
	OptimizerAdam    = "adam"
)

// Model snapshot formats
const (
	FormatJSON   = "json"
	FormatXML    = "xml"
	FormatBinary = "binary"
)

// Storage backends
const (
	StorageBackendFile  = "file"
	StorageBackendS3    = "s3"
	StorageBackendRedis = "redis"
)

// Job types and states
const (
	JobTypeTrain    = "train"
	JobTypeGenerate = "generate"
	JobTypeEvaluate = "evaluate"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	HeaderRequestID   = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON        = "application/json"
	ContentTypeXML         = "application/xml"
	ContentTypeCSV         = "text/csv"
	ContentTypePlainText   = "text/plain"
	ContentTypeOctetStream = "application/octet-stream"
)

// Environment variable prefix used by viper
const EnvPrefix = "SEQNET"

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)
