// internal/api/handler/api/conversions.go
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/newthinker/dzibridge/internal/api/job"
	"github.com/newthinker/dzibridge/internal/api/response"
	"github.com/newthinker/dzibridge/internal/app"
	"github.com/newthinker/dzibridge/internal/bundle"
	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
	"github.com/newthinker/dzibridge/internal/metrics"
)

// Service is the part of app.Service the JSON API needs.
type Service interface {
	Stage(name string, r io.Reader) (string, error)
	Convert(ctx context.Context, staged string) (app.Result, error)
	Discard(staged string)
	Bundle(name string) (*bytes.Reader, error)
	Descriptors() (int, error)
	Describe(name string) (dzi.Descriptor, error)
	Published(ctx context.Context) ([]string, error)
	PublishedBundle(ctx context.Context, fileName string) (*bytes.Reader, error)
	OutputDir() string
}

// ConversionsHandler handles conversion API requests.
type ConversionsHandler struct {
	jobStore *job.Store
	svc      Service
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// NewConversionsHandler creates a new conversions handler. reg may be nil.
func NewConversionsHandler(jobStore *job.Store, svc Service, reg *metrics.Registry, logger *zap.Logger) *ConversionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversionsHandler{
		jobStore: jobStore,
		svc:      svc,
		metrics:  reg,
		logger:   logger,
	}
}

// Create stages the uploaded image and starts converting it in the
// background.
func (h *ConversionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(app.UploadField)
	if err != nil {
		response.Error(w, http.StatusBadRequest, app.UploadError(err))
		return
	}
	defer file.Close()

	staged, err := h.svc.Stage(header.Filename, file)
	if err != nil {
		response.Fail(w, err)
		return
	}

	j, err := h.jobStore.Create(app.JobType, header.Filename)
	if err != nil {
		h.svc.Discard(staged)
		response.Fail(w, err)
		return
	}

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	h.syncActive()
	go h.run(jobID, staged)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// run converts the staged file and records the outcome on the job.
func (h *ConversionsHandler) run(jobID, staged string) {
	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	res, err := h.svc.Convert(context.Background(), staged)
	if err != nil {
		h.logger.Warn("conversion job failed", zap.String("job_id", jobID), zap.Error(err))
		h.update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = jobError(err)
		})
		h.syncActive()
		return
	}

	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = res
	})
	h.syncActive()
}

// update applies fn to the job. The conversion result is still on disk when
// the job is gone, so a failed update is only logged.
func (h *ConversionsHandler) update(jobID string, fn func(*job.Job)) {
	if err := h.jobStore.Update(jobID, fn); err != nil {
		h.logger.Error("updating conversion job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// GetStatus returns the status of a conversion job.
func (h *ConversionsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}

	response.JSON(w, http.StatusOK, jobView(*j))
}

// List returns every live conversion job, oldest first.
func (h *ConversionsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobStore.List()

	views := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		if j.Type == app.JobType {
			views = append(views, jobView(j))
		}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"jobs":   views,
		"count":  len(views),
		"active": h.jobStore.Active(app.JobType),
	})
}

func jobView(j job.Job) map[string]any {
	view := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"input":      j.Input,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}

	if j.Status == job.StatusComplete {
		view["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		view["error"] = response.Detail(j.Error)
	}
	return view
}

// Descriptors reports how many descriptors the output directory holds.
func (h *ConversionsHandler) Descriptors(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Descriptors()
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"count":      n,
		"output_dir": h.svc.OutputDir(),
	})
}

// Bundle serves the zip archive for the output called name.
func (h *ConversionsHandler) Bundle(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rdr, err := h.svc.Bundle(name)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.Attachment(w, r, bundle.FileName(name), bundle.ContentType, rdr)
}

// Describe returns the parsed descriptor of the output called name.
func (h *ConversionsHandler) Describe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	d, err := h.svc.Describe(name)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"name":      name,
		"format":    d.Format,
		"tile_size": d.TileSize,
		"overlap":   d.Overlap,
		"width":     d.Size.Width,
		"height":    d.Size.Height,
		"levels":    d.Levels(),
	})
}

// Published lists the bundles copied to the publish target.
func (h *ConversionsHandler) Published(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Published(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"bundles": names,
		"count":   len(names),
	})
}

// PublishedBundle serves a bundle back from the publish target.
func (h *ConversionsHandler) PublishedBundle(w http.ResponseWriter, r *http.Request) {
	fileName := r.PathValue("file")

	rdr, err := h.svc.PublishedBundle(r.Context(), fileName)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.Attachment(w, r, fileName, bundle.ContentType, rdr)
}

func (h *ConversionsHandler) syncActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(app.JobType, h.jobStore.Active(app.JobType))
	}
}

func jobError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return &core.Error{Code: "INTERNAL_ERROR", Message: "an internal error occurred", Cause: err}
}
