package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/datasets"
	"github.com/seqforge/seqnet/internal/registry"
	"github.com/seqforge/seqnet/internal/training"
	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// Handlers bundles the HTTP handlers with the components they drive.
type Handlers struct {
	factory   *datasets.Factory
	processor *training.Processor
	registry  *registry.Registry
	logger    *logrus.Logger
	version   string
	startTime time.Time
}

// NewHandlers creates the handler set. The registry may be nil when no
// artifact store is configured; model endpoints then report an error.
func NewHandlers(factory *datasets.Factory, processor *training.Processor, reg *registry.Registry, logger *logrus.Logger, version string) *Handlers {
	if factory == nil {
		factory = datasets.NewFactory(logger)
	}
	if logger == nil {
		logger = logrus.New()
	}
	if version == "" {
		version = constants.AppVersion
	}
	return &Handlers{
		factory:   factory,
		processor: processor,
		registry:  reg,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// generateRequest is the body of a synchronous generation call. The embedded
// dataset spec fields sit at the top level of the JSON document.
type generateRequest struct {
	models.DatasetSpec
	Format string `json:"format,omitempty"`
}

// generatorInfo describes one registered dataset generator.
type generatorInfo struct {
	Type              string                 `json:"type"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	DefaultParameters map[string]interface{} `json:"default_parameters,omitempty"`
}

// handleHealth returns the service health status
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	}
	if h.processor != nil {
		health["jobs"] = map[string]interface{}{
			"active":    h.processor.ActiveJobs(),
			"completed": h.processor.CompletedJobs(),
			"failed":    h.processor.FailedJobs(),
		}
	}
	h.writeJSON(w, http.StatusOK, health)
}

// handleVersion returns build information
func (h *Handlers) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":       constants.AppName,
		"version":    h.version,
		"go_version": runtime.Version(),
	})
}

// handleListGenerators lists the registered dataset generators
func (h *Handlers) handleListGenerators(w http.ResponseWriter, r *http.Request) {
	types := h.factory.GetAvailableTypes()
	infos := make([]generatorInfo, 0, len(types))
	for _, datasetType := range types {
		gen, err := h.factory.CreateGenerator(datasetType)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		infos = append(infos, generatorInfo{
			Type:              gen.GetType(),
			Name:              gen.GetName(),
			Description:       gen.GetDescription(),
			DefaultParameters: gen.GetDefaultParameters(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"generators": infos,
		"count":      len(infos),
	})
}

// handleGenerateDataset generates a dataset synchronously and streams it back
// as JSON or CSV depending on the requested format.
func (h *Handlers) handleGenerateDataset(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}
	if req.Type == "" {
		h.writeError(w, r, errors.NewValidationError(errors.CodeMissingField,
			"dataset type is required"))
		return
	}
	if !h.factory.IsSupported(req.Type) {
		h.writeError(w, r, errors.NewValidationError(errors.CodeUnsupportedType,
			fmt.Sprintf("dataset type %q is not supported", req.Type)))
		return
	}
	switch req.Format {
	case "", constants.FormatJSON, "csv":
	default:
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("export format %q is not supported", req.Format)))
		return
	}

	generator, err := h.factory.CreateGenerator(req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := generator.ValidateParameters(req.DatasetSpec); err != nil {
		h.writeError(w, r, err)
		return
	}

	ds, err := generator.Generate(r.Context(), req.DatasetSpec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"generator":  req.Type,
		"columns":    ds.Info.Columns,
		"steps":      ds.Info.Steps,
		"request_id": getRequestID(r),
	}).Info("Dataset generated")

	if req.Format == "csv" {
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeCSV)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s.csv", ds.Info.Type))
		w.WriteHeader(http.StatusOK)
		if err := datasets.ExportCSV(w, ds); err != nil {
			h.logger.WithError(err).Error("Failed to stream dataset CSV")
		}
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if err := datasets.ExportJSON(w, ds); err != nil {
		h.logger.WithError(err).Error("Failed to stream dataset JSON")
	}
}

// handleSubmitJob queues a training, generation or evaluation job
func (h *Handlers) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		h.writeError(w, r, errors.NewJobError(errors.CodeJobFailed,
			"job processor is not configured"))
		return
	}

	var job models.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput,
			"invalid request body").WithDetails(err.Error()))
		return
	}

	submitted, err := h.processor.SubmitJob(job)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"job_id":     submitted.ID,
		"job_type":   submitted.Type,
		"request_id": getRequestID(r),
	}).Info("Job accepted")

	h.writeJSON(w, http.StatusAccepted, submitted)
}

// handleListJobs lists all submitted jobs
func (h *Handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		h.writeError(w, r, errors.NewJobError(errors.CodeJobFailed,
			"job processor is not configured"))
		return
	}
	jobs := h.processor.List()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns the status and result of a single job
func (h *Handlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		h.writeError(w, r, errors.NewJobError(errors.CodeJobFailed,
			"job processor is not configured"))
		return
	}
	jobID := mux.Vars(r)["id"]
	job, err := h.processor.Get(jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// handleListModels lists the registered models
func (h *Handlers) handleListModels(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.writeError(w, r, errors.NewStorageError(errors.CodeStorageError,
			"model registry is not configured"))
		return
	}
	infos, err := h.registry.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": infos,
		"count":  len(infos),
	})
}

// handleGetModel returns a registered model with its versions
func (h *Handlers) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.writeError(w, r, errors.NewStorageError(errors.CodeStorageError,
			"model registry is not configured"))
		return
	}
	modelID := mux.Vars(r)["id"]
	info, err := h.registry.Get(r.Context(), modelID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// handleDeleteModel removes a registered model and its snapshots
func (h *Handlers) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.writeError(w, r, errors.NewStorageError(errors.CodeStorageError,
			"model registry is not configured"))
		return
	}
	modelID := mux.Vars(r)["id"]
	if err := h.registry.Delete(r.Context(), modelID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"model_id":   modelID,
		"request_id": getRequestID(r),
	}).Info("Model deleted")

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with the given status code
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes an error response in the standard envelope
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.NewInternalError(err.Error())
	}

	entry := h.logger.WithFields(logrus.Fields{
		"code":       appErr.Code,
		"path":       r.URL.Path,
		"request_id": getRequestID(r),
	})
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.Warn(appErr.Message)
	}

	h.writeJSON(w, appErr.HTTPStatus, errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
