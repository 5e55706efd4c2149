package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// LoadJobFile reads a YAML job file for the worker binary. Missing job types
// default to train; runtime fields such as status and timestamps are ignored
// on input and filled by the processor.
func LoadJobFile(path string) (*models.JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			fmt.Sprintf("failed to read job file %q", path))
	}

	var file models.JobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeDecodeFailed,
			fmt.Sprintf("failed to parse job file %q", path))
	}
	if len(file.Jobs) == 0 {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			fmt.Sprintf("job file %q holds no jobs", path))
	}

	for i := range file.Jobs {
		if file.Jobs[i].Type == "" {
			file.Jobs[i].Type = constants.JobTypeTrain
		}
		switch file.Jobs[i].Type {
		case constants.JobTypeTrain, constants.JobTypeGenerate, constants.JobTypeEvaluate:
		default:
			return nil, errors.NewValidationError(errors.CodeUnsupportedType,
				fmt.Sprintf("job %d: job type %q is not supported", i, file.Jobs[i].Type))
		}
	}

	return &file, nil
}

// LoadTrainingSpec reads a training spec from a YAML or JSON file, selected
// by extension.
func LoadTrainingSpec(path string) (*models.TrainingSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			fmt.Sprintf("failed to read spec file %q", path))
	}

	var spec models.TrainingSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &spec)
	default:
		err = yaml.Unmarshal(data, &spec)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeDecodeFailed,
			fmt.Sprintf("failed to parse spec file %q", path))
	}

	if spec.Dataset.Type == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			"training spec needs a dataset type")
	}

	return &spec, nil
}
