package training

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/evaluation"
	"github.com/seqforge/seqnet/internal/nn"
	"github.com/seqforge/seqnet/internal/observability/metrics"
	"github.com/seqforge/seqnet/internal/registry"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// recallThreshold binarizes recall-task predictions before exact matching.
const recallThreshold = 0.5

// Config holds the processor settings.
type Config struct {
	Concurrency int           `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`
	JobTimeout  time.Duration `json:"job_timeout" yaml:"job_timeout" mapstructure:"job_timeout"`
}

// DefaultConfig returns the default processor settings.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: constants.DefaultWorkerConcurrency,
		QueueSize:   constants.DefaultQueueSize,
		JobTimeout:  constants.DefaultJobTimeout,
	}
}

// Processor runs training, generation and evaluation jobs on a pool of
// workers fed by an in-memory queue. Jobs are tracked in submission order and
// survive until the processor is discarded; the model registry is optional
// and only needed for jobs that save or load snapshots.
type Processor struct {
	config   *Config
	logger   *logrus.Logger
	factory  *datasets.Factory
	registry *registry.Registry
	metrics  *metrics.Metrics

	jobs  map[string]*models.Job
	order []string
	queue chan string
	mu    sync.RWMutex

	closed   bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeJobs    int32
	completedJobs int64
	failedJobs    int64
}

// NewProcessor creates a job processor. The registry and metrics may be nil;
// a nil config or factory falls back to defaults.
func NewProcessor(config *Config, factory *datasets.Factory, reg *registry.Registry, m *metrics.Metrics, logger *logrus.Logger) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = constants.DefaultWorkerConcurrency
	}
	if config.QueueSize <= 0 {
		config.QueueSize = constants.DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	if factory == nil {
		factory = datasets.NewFactory(logger)
	}

	return &Processor{
		config:   config,
		logger:   logger,
		factory:  factory,
		registry: reg,
		metrics:  m,
		jobs:     make(map[string]*models.Job),
		queue:    make(chan string, config.QueueSize),
	}
}

// Start launches the worker pool and blocks until all workers have stopped,
// either because the context was cancelled or because Stop closed the queue
// and the remaining jobs drained.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.WithField("concurrency", p.config.Concurrency).Info("Starting job processor")

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Wait()
	p.logger.Info("Job processor stopped")
	return nil
}

// Stop closes the job queue. Workers finish the queued jobs and exit; further
// submissions fail. Stop is safe to call more than once.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.queue)
		p.logger.Info("Job processor stop requested")
	})
}

// Submit creates a job of the given type from a training spec and queues it.
func (p *Processor) Submit(jobType string, spec models.TrainingSpec) (*models.Job, error) {
	return p.SubmitJob(models.Job{Type: jobType, Spec: spec})
}

// SubmitJob queues a job, filling in the ID, status and creation time. An ID
// supplied by the caller is kept, which lets job files reference their runs.
func (p *Processor) SubmitJob(job models.Job) (*models.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Type == "" {
		job.Type = constants.JobTypeTrain
	}
	switch job.Type {
	case constants.JobTypeTrain, constants.JobTypeGenerate, constants.JobTypeEvaluate:
	default:
		return nil, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("job type %q is not supported", job.Type))
	}

	job.Status = constants.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.Result = nil
	job.Error = ""
	job.StartedAt = nil
	job.CompletedAt = nil

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.NewJobError(errors.CodeJobFailed, "job processor is stopped")
	}
	if _, exists := p.jobs[job.ID]; exists {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("job %q already exists", job.ID))
	}

	select {
	case p.queue <- job.ID:
	default:
		return nil, errors.NewJobError(errors.CodeQueueFull, "job queue is full")
	}

	stored := job
	p.jobs[job.ID] = &stored
	p.order = append(p.order, job.ID)

	if p.metrics != nil {
		p.metrics.SetQueueDepth(float64(len(p.queue)))
	}

	p.logger.WithFields(logrus.Fields{
		"jobID":   job.ID,
		"jobType": job.Type,
	}).Debug("Job queued")

	out := job
	return &out, nil
}

// Get returns a copy of the job with the given ID.
func (p *Processor) Get(jobID string) (*models.Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	job, exists := p.jobs[jobID]
	if !exists {
		return nil, errors.NewJobError(errors.CodeJobNotFound,
			fmt.Sprintf("job %q not found", jobID))
	}

	out := *job
	return &out, nil
}

// List returns copies of all jobs in submission order.
func (p *Processor) List() []*models.Job {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Job, 0, len(p.order))
	for _, id := range p.order {
		job := *p.jobs[id]
		out = append(out, &job)
	}
	return out
}

// ActiveJobs returns the number of jobs currently being processed.
func (p *Processor) ActiveJobs() int32 {
	return atomic.LoadInt32(&p.activeJobs)
}

// CompletedJobs returns the number of successfully completed jobs.
func (p *Processor) CompletedJobs() int64 {
	return atomic.LoadInt64(&p.completedJobs)
}

// FailedJobs returns the number of failed jobs.
func (p *Processor) FailedJobs() int64 {
	return atomic.LoadInt64(&p.failedJobs)
}

func (p *Processor) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.WithField("workerID", workerID)
	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopping due to context cancellation")
			return
		case jobID, ok := <-p.queue:
			if !ok {
				logger.Info("Worker stopping, job queue closed")
				return
			}
			p.processJob(ctx, jobID, workerID)
		}
	}
}

func (p *Processor) processJob(ctx context.Context, jobID string, workerID int) {
	atomic.AddInt32(&p.activeJobs, 1)
	defer func() {
		atomic.AddInt32(&p.activeJobs, -1)
		if p.metrics != nil {
			p.metrics.SetActiveJobs(float64(atomic.LoadInt32(&p.activeJobs)))
			p.metrics.SetQueueDepth(float64(len(p.queue)))
		}
	}()
	if p.metrics != nil {
		p.metrics.SetActiveJobs(float64(atomic.LoadInt32(&p.activeJobs)))
		p.metrics.SetQueueDepth(float64(len(p.queue)))
	}

	job, err := p.Get(jobID)
	if err != nil {
		p.logger.WithError(err).WithField("jobID", jobID).Error("Queued job disappeared")
		return
	}

	logger := p.logger.WithFields(logrus.Fields{
		"jobID":    job.ID,
		"jobType":  job.Type,
		"workerID": workerID,
	})
	logger.Info("Processing job")

	p.markRunning(jobID)

	jobCtx := ctx
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	var result map[string]interface{}

	switch job.Type {
	case constants.JobTypeTrain:
		result, err = p.runTrain(jobCtx, logger, job.Spec)
	case constants.JobTypeGenerate:
		result, err = p.runGenerate(jobCtx, logger, job.Spec)
	case constants.JobTypeEvaluate:
		result, err = p.runEvaluate(jobCtx, logger, job.Spec)
	default:
		err = errors.NewJobError(errors.CodeUnsupportedType,
			fmt.Sprintf("job type %q is not supported", job.Type))
	}

	duration := time.Since(start)

	if err != nil {
		status := constants.JobStatusFailed
		if ctx.Err() != nil {
			status = constants.JobStatusCancelled
		}
		atomic.AddInt64(&p.failedJobs, 1)
		p.markFinished(jobID, status, nil, err.Error())
		if p.metrics != nil {
			p.metrics.RecordJob(job.Type, status, duration)
		}
		logger.WithError(err).WithField("duration", duration).Error("Job failed")
		return
	}

	atomic.AddInt64(&p.completedJobs, 1)
	p.markFinished(jobID, constants.JobStatusCompleted, result, "")
	if p.metrics != nil {
		p.metrics.RecordJob(job.Type, constants.JobStatusCompleted, duration)
	}
	logger.WithField("duration", duration).Info("Job completed")
}

func (p *Processor) markRunning(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, exists := p.jobs[jobID]
	if !exists {
		return
	}
	now := time.Now().UTC()
	job.Status = constants.JobStatusRunning
	job.StartedAt = &now
}

func (p *Processor) markFinished(jobID, status string, result map[string]interface{}, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, exists := p.jobs[jobID]
	if !exists {
		return
	}
	now := time.Now().UTC()
	job.Status = status
	job.Result = result
	job.Error = errMsg
	job.CompletedAt = &now
}

// runTrain generates the dataset, builds the model and optimizer, trains for
// the requested number of epochs and scores the result on the held-out
// sequences. When a registry is attached and the spec names a save format,
// the trained model is registered and a snapshot version is stored.
func (p *Processor) runTrain(ctx context.Context, logger *logrus.Entry, spec models.TrainingSpec) (map[string]interface{}, error) {
	ds, err := p.generateDataset(ctx, logger, spec.Dataset)
	if err != nil {
		return nil, err
	}

	model, err := BuildModel(spec.Model)
	if err != nil {
		return nil, err
	}
	model.SetLogger(p.logger)

	opt, err := BuildOptimizer(spec.Optimizer)
	if err != nil {
		return nil, err
	}
	if withLogger, ok := opt.(interface{ SetLogger(*logrus.Logger) }); ok {
		withLogger.SetLogger(p.logger)
	}

	trainCols, testCols := splitColumns(ds.Inputs.Cols(), spec.TestFraction)
	trainInputs, trainTargets, _ := subsetDataset(ds, trainCols)

	epochs := spec.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	start := time.Now()
	objective := 0.0
	for epoch := 1; epoch <= epochs; epoch++ {
		objective, err = model.Train(ctx, trainInputs, trainTargets, opt)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"epoch":     epoch,
			"objective": objective,
		}).Debug("Epoch finished")
	}

	trainMetrics := models.TrainingMetrics{
		FinalObjective: objective,
		Epochs:         epochs,
		Duration:       time.Since(start),
	}

	// Score on the held-out sequences, or on the training set when nothing
	// was held out.
	evalCols := testCols
	if len(evalCols) == 0 {
		evalCols = trainCols
	}
	if err := scoreModel(model, ds, evalCols, &trainMetrics); err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"metrics": trainMetrics,
		"dataset": ds.Info,
	}

	if p.registry != nil && spec.SaveFormat != "" {
		info, version, err := p.saveTrained(ctx, spec, model)
		if err != nil {
			return nil, err
		}
		result["model_id"] = info.ID
		result["version_id"] = version.ID
		if p.metrics != nil {
			p.metrics.RecordSnapshot(version.Format)
		}
	}

	return result, nil
}

// saveTrained registers the model under the spec name, reusing an existing
// registry entry with that name, and stores a snapshot version.
func (p *Processor) saveTrained(ctx context.Context, spec models.TrainingSpec, model Model) (*models.ModelInfo, *models.ModelVersion, error) {
	name := spec.Name
	if name == "" {
		name = spec.Dataset.Type
	}
	modelType := spec.Model.Type
	if modelType == "" {
		modelType = constants.ModelTypeRNN
	}

	info, err := p.findModelByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		info, err = p.registry.Register(ctx, name, modelType,
			fmt.Sprintf("Trained on %s data", spec.Dataset.Type),
			map[string]string{"dataset": spec.Dataset.Type})
		if err != nil {
			return nil, nil, err
		}
	}

	version, err := p.registry.SaveVersion(ctx, info.ID, spec.SaveFormat, model)
	if err != nil {
		return nil, nil, err
	}
	return info, version, nil
}

// runGenerate produces a dataset and summarizes it.
func (p *Processor) runGenerate(ctx context.Context, logger *logrus.Entry, spec models.TrainingSpec) (map[string]interface{}, error) {
	ds, err := p.generateDataset(ctx, logger, spec.Dataset)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"dataset":   ds.Info,
		"rows":      ds.Info.Rows,
		"columns":   ds.Info.Columns,
		"steps":     ds.Info.Steps,
		"generator": ds.Info.Type,
	}, nil
}

// runEvaluate loads the latest stored version of the model named by the spec
// and scores it on a freshly generated dataset.
func (p *Processor) runEvaluate(ctx context.Context, logger *logrus.Entry, spec models.TrainingSpec) (map[string]interface{}, error) {
	if p.registry == nil {
		return nil, errors.NewJobError(errors.CodeJobFailed,
			"evaluate jobs need a model registry")
	}
	if spec.Name == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"evaluate jobs need a model name")
	}

	info, err := p.findModelByName(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.NewStorageError(errors.CodeModelNotFound,
			fmt.Sprintf("model %q not found", spec.Name))
	}

	var model Model
	switch info.Type {
	case constants.ModelTypeBRNN:
		model, err = p.registry.LoadBRNN(ctx, info.ID, "")
	default:
		model, err = p.registry.LoadRNN(ctx, info.ID, "")
	}
	if err != nil {
		return nil, err
	}

	ds, err := p.generateDataset(ctx, logger, spec.Dataset)
	if err != nil {
		return nil, err
	}

	evalMetrics := models.TrainingMetrics{}
	if err := scoreModel(model, ds, nil, &evalMetrics); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"metrics":  evalMetrics,
		"dataset":  ds.Info,
		"model_id": info.ID,
	}, nil
}

// generateDataset creates the dataset described by the spec and records the
// generation outcome.
func (p *Processor) generateDataset(ctx context.Context, logger *logrus.Entry, spec models.DatasetSpec) (*datasets.Dataset, error) {
	generator, err := p.factory.CreateGenerator(spec.Type)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ds, err := generator.Generate(ctx, spec)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordGeneration(spec.Type, "failed", time.Since(start))
		}
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordGeneration(spec.Type, "success", time.Since(start))
	}

	logger.WithFields(logrus.Fields{
		"generator": spec.Type,
		"columns":   ds.Info.Columns,
		"steps":     ds.Info.Steps,
	}).Debug("Dataset generated")

	return ds, nil
}

// findModelByName scans the registry for an entry with the given name. A nil
// result without error means no entry matched.
func (p *Processor) findModelByName(ctx context.Context, name string) (*models.ModelInfo, error) {
	entries, err := p.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Name == name {
			return entry, nil
		}
	}
	return nil, nil
}

// Score evaluates a model over a full dataset, filling the task metric that
// matches the dataset family. Dataset types without a task metric leave out
// untouched.
func Score(model Model, ds *datasets.Dataset, out *models.TrainingMetrics) error {
	return scoreModel(model, ds, nil, out)
}

// scoreModel predicts over the selected dataset columns and fills the task
// metric matching the dataset family. A nil column set scores the whole
// dataset.
func scoreModel(model Model, ds *datasets.Dataset, cols []int, out *models.TrainingMetrics) error {
	inputs, targets, labels := subsetDataset(ds, cols)

	predictions, err := model.Predict(inputs)
	if err != nil {
		return err
	}

	switch ds.Info.Type {
	case constants.DatasetTypeNoisySines:
		e, err := evaluation.ClassificationError(predictions, labels)
		if err != nil {
			return err
		}
		out.ClassificationError = e

	case constants.DatasetTypeDistractedSequence:
		e, err := evaluation.SequenceRecallError(predictions, targets, recallThreshold)
		if err != nil {
			return err
		}
		out.RecallError = e

	case constants.DatasetTypeNoisySineSeries:
		e, err := seriesError(inputs, predictions)
		if err != nil {
			return err
		}
		out.RegressionError = e
	}

	return nil
}

// seriesError averages the one-step-ahead error over the batch, one sequence
// at a time so step boundaries never pair values across sequences.
func seriesError(inputs, predictions *nn.Cube) (float64, error) {
	total := 0.0
	for j := 0; j < inputs.Cols(); j++ {
		e, err := evaluation.OneStepAheadError(
			inputs.ColumnRange(j, j+1),
			predictions.ColumnRange(j, j+1),
		)
		if err != nil {
			return 0, err
		}
		total += e
	}
	return total / float64(inputs.Cols()), nil
}

// subsetDataset restricts a dataset to the given sequence columns. A nil or
// empty column set returns the full cubes.
func subsetDataset(ds *datasets.Dataset, cols []int) (*nn.Cube, *nn.Cube, *mat.Dense) {
	if len(cols) == 0 || len(cols) == ds.Inputs.Cols() {
		return ds.Inputs, ds.Targets, ds.Labels
	}

	inputs := ds.Inputs.Columns(cols)
	var targets *nn.Cube
	if ds.Targets != nil {
		targets = ds.Targets.Columns(cols)
	}
	var labels *mat.Dense
	if ds.Labels != nil {
		labels = selectMatrixColumns(ds.Labels, cols)
	}
	return inputs, targets, labels
}

// selectMatrixColumns copies the given columns of m into a new matrix.
func selectMatrixColumns(m *mat.Dense, cols []int) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.NewDense(rows, len(cols), nil)
	for j, col := range cols {
		for i := 0; i < rows; i++ {
			out.Set(i, j, m.At(i, col))
		}
	}
	return out
}

// splitColumns partitions sequence indices into train and test sets. Test
// columns are spread evenly across the batch so class-grouped datasets keep
// both classes on both sides of the split.
func splitColumns(total int, fraction float64) (train, test []int) {
	if fraction <= 0 || total < 2 {
		train = make([]int, total)
		for i := range train {
			train[i] = i
		}
		return train, nil
	}
	if fraction > 0.5 {
		fraction = 0.5
	}

	nTest := int(math.Round(float64(total) * fraction))
	if nTest < 1 {
		nTest = 1
	}
	stride := total / nTest
	if stride < 2 {
		stride = 2
	}

	for i := 0; i < total; i++ {
		if i%stride == stride-1 && len(test) < nTest {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}
