package presenter

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// JSONPresenter implements output.Presenter for JSON output.
// Every call writes one JSON document per line for programmatic consumption.
type JSONPresenter struct {
	output io.Writer
}

// NewJSONPresenter creates a new JSON presenter
func NewJSONPresenter(output io.Writer) output.Presenter {
	return &JSONPresenter{output: output}
}

// PresentSuccess presents a successful result as JSON
func (p *JSONPresenter) PresentSuccess(message string, data interface{}) error {
	result := map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	}
	return json.NewEncoder(p.output).Encode(result)
}

// PresentError presents an error as JSON. Handover validation failures
// carry the individual rule violations under "details".
func (p *JSONPresenter) PresentError(err error) error {
	result := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
		"kind":    ErrorKind(err),
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		result["details"] = verr.Errors
	}
	return json.NewEncoder(p.output).Encode(result)
}

// PresentProgress presents progress information as JSON
func (p *JSONPresenter) PresentProgress(message string, progress int, total int) error {
	percent := 0.0
	if total > 0 {
		percent = float64(progress) / float64(total) * 100
	}
	result := map[string]interface{}{
		"type":     "progress",
		"message":  message,
		"progress": progress,
		"total":    total,
		"percent":  percent,
	}
	return json.NewEncoder(p.output).Encode(result)
}

// ErrorKind classifies err by the sentinel it wraps
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, model.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
