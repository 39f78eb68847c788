// Package server provides the HTTP API for audio2midi.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/audio2midi/internal/batch"
	"github.com/maauso/audio2midi/internal/packaging"
)

// CreateBatchRequest is the validated form of a POST /batches multipart body.
type CreateBatchRequest struct {
	// URLs are remote sources, one form value each.
	URLs []string `validate:"max=100,dive,required,url"`
	// Files is the number of uploaded parts.
	Files int `validate:"max=100"`
	// Settings is decoded from the "settings" JSON form value.
	Settings batch.Settings
}

// CreateBatchResponse is the HTTP response after creating a batch.
type CreateBatchResponse struct {
	// ID is the unique identifier for the created batch.
	ID string `json:"id"`
	// State is the batch state at response time.
	State string `json:"state"`
	// Skipped is the number of uploads dropped as non-audio.
	Skipped int `json:"skipped,omitempty"`
}

// BatchResponse is the HTTP response for getting batch details.
type BatchResponse struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Cursor   int     `json:"cursor"`
	Total    int     `json:"total"`
	Progress float64 `json:"progress"`

	Results []ResultResponse  `json:"results"`
	Errors  []batch.ItemError `json:"errors"`

	// Failure is set when the whole batch failed.
	Failure     string `json:"failure,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`

	Delivery      *DeliveryResponse `json:"delivery,omitempty"`
	DeliveryError string            `json:"delivery_error,omitempty"`

	Settings  batch.Settings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ResultResponse describes one converted source.
type ResultResponse struct {
	Index     int     `json:"index"`
	Source    string  `json:"source"`
	Name      string  `json:"name"`
	NoteCount int     `json:"note_count"`
	Dropped   int     `json:"dropped_notes"`
	Duration  float64 `json:"duration_sec"`
	// Location is set when the result was published as its own file.
	Location string `json:"location,omitempty"`
}

// DeliveryResponse describes the packaged output.
type DeliveryResponse struct {
	Mode      string             `json:"mode"`
	Artifacts []ArtifactResponse `json:"artifacts"`
}

// ArtifactResponse is one published file.
type ArtifactResponse struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Location string `json:"location,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newBatchResponse(j *batch.Job) BatchResponse {
	total := len(j.Sources)
	resp := BatchResponse{
		ID:            j.ID,
		State:         string(j.State),
		Cursor:        j.Cursor,
		Total:         total,
		Results:       make([]ResultResponse, len(j.Results)),
		Errors:        j.Errors,
		Failure:       j.Failure,
		FailureKind:   string(j.FailureKind),
		DeliveryError: j.DeliveryError,
		Settings:      j.Settings,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
	if resp.Errors == nil {
		resp.Errors = []batch.ItemError{}
	}
	if total > 0 {
		resp.Progress = float64(len(j.Results)+len(j.Errors)) / float64(total)
	}

	perResult := j.Delivery != nil && j.Delivery.Mode != packaging.ModeArchive && len(j.Locations) == len(j.Results)
	for i, r := range j.Results {
		resp.Results[i] = ResultResponse{
			Index:     r.Index,
			Source:    r.SourceName,
			Name:      r.OutputName,
			NoteCount: r.NoteCount,
			Dropped:   r.Dropped,
			Duration:  r.Duration,
		}
		if perResult {
			resp.Results[i].Location = j.Locations[i]
		}
	}

	if j.Delivery != nil {
		d := &DeliveryResponse{
			Mode:      string(j.Delivery.Mode),
			Artifacts: make([]ArtifactResponse, len(j.Delivery.Artifacts)),
		}
		for i, a := range j.Delivery.Artifacts {
			d.Artifacts[i] = ArtifactResponse{Name: a.Name, Size: a.Size}
			if i < len(j.Locations) {
				d.Artifacts[i].Location = j.Locations[i]
			}
		}
		resp.Delivery = d
	}
	return resp
}
