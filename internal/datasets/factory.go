package datasets

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
)

// CreateFunc builds a fresh generator instance.
type CreateFunc func() Generator

// Factory creates dataset generators by type.
type Factory struct {
	creators map[string]CreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a generator factory with the default generator types
// registered.
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]CreateFunc),
		logger:   logger,
	}
	factory.registerDefaults()

	return factory
}

// CreateGenerator creates a new generator instance for the given type.
func (f *Factory) CreateGenerator(datasetType string) (Generator, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[datasetType]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewGenerationError(errors.CodeUnsupportedType,
			fmt.Sprintf("dataset type '%s' is not supported", datasetType))
	}

	generator := createFunc()
	if generator == nil {
		return nil, errors.NewGenerationError(errors.CodeGenerationFailed,
			fmt.Sprintf("failed to create %s generator", datasetType))
	}

	f.logger.WithFields(logrus.Fields{
		"dataset_type": datasetType,
	}).Debug("Created generator instance")

	return generator, nil
}

// GetAvailableTypes returns all registered dataset types.
func (f *Factory) GetAvailableTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for datasetType := range f.creators {
		types = append(types, datasetType)
	}

	return types
}

// RegisterGenerator registers a new generator type.
func (f *Factory) RegisterGenerator(datasetType string, createFunc CreateFunc) error {
	if datasetType == "" {
		return errors.NewValidationError(errors.CodeMissingField, "dataset type cannot be empty")
	}

	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "generator create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[datasetType] = createFunc

	f.logger.WithFields(logrus.Fields{
		"dataset_type": datasetType,
	}).Debug("Registered generator type")

	return nil
}

// IsSupported checks if a dataset type is registered.
func (f *Factory) IsSupported(datasetType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[datasetType]
	return exists
}

func (f *Factory) registerDefaults() {
	f.RegisterGenerator(constants.DatasetTypeNoisySines, func() Generator {
		return NewNoisySinesGenerator(nil, f.logger)
	})

	f.RegisterGenerator(constants.DatasetTypeDistractedSequence, func() Generator {
		return NewDistractedSequenceGenerator(nil, f.logger)
	})

	f.RegisterGenerator(constants.DatasetTypeNoisySineSeries, func() Generator {
		return NewSineSeriesGenerator(nil, f.logger)
	})

	f.RegisterGenerator(constants.DatasetTypeCharSequences, func() Generator {
		return NewCharSequencesGenerator(nil, f.logger)
	})
}

// Registry holds ready generator instances keyed by type.
type Registry struct {
	generators map[string]Generator
	mu         sync.RWMutex
	logger     *logrus.Logger
}

// NewRegistry creates an empty generator registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}

	return &Registry{
		generators: make(map[string]Generator),
		logger:     logger,
	}
}

// Register adds a generator instance to the registry.
func (r *Registry) Register(generator Generator) error {
	if generator == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "generator cannot be nil")
	}

	datasetType := generator.GetType()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.generators[datasetType] = generator

	r.logger.WithFields(logrus.Fields{
		"dataset_type": datasetType,
		"name":         generator.GetName(),
	}).Debug("Registered generator")

	return nil
}

// Get retrieves a generator by dataset type.
func (r *Registry) Get(datasetType string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	generator, exists := r.generators[datasetType]
	if !exists {
		return nil, errors.NewGenerationError(errors.CodeUnsupportedType,
			fmt.Sprintf("dataset type '%s' not found in registry", datasetType))
	}

	return generator, nil
}

// List returns all registered generators.
func (r *Registry) List() []Generator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	generators := make([]Generator, 0, len(r.generators))
	for _, generator := range r.generators {
		generators = append(generators, generator)
	}

	return generators
}

// Remove drops a generator from the registry.
func (r *Registry) Remove(datasetType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.generators[datasetType]; !exists {
		return errors.NewGenerationError(errors.CodeUnsupportedType,
			fmt.Sprintf("dataset type '%s' not found in registry", datasetType))
	}

	delete(r.generators, datasetType)
	return nil
}

// Count returns the number of registered generators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.generators)
}
