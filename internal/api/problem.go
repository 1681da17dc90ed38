package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/validation"
)

const problemBaseURI = "https://mykrok.dev/errors/"

// Problem is an RFC 7807 response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemWithErrors adds per-field validation failures to a Problem.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// problemSlugs names the statuses the API emits.
var problemSlugs = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusNotFound:            "not-found",
	http.StatusMethodNotAllowed:    "read-only",
	http.StatusUnprocessableEntity: "validation-error",
	http.StatusInternalServerError: "internal-error",
	http.StatusServiceUnavailable:  "archive-unavailable",
}

func newProblem(r *http.Request, status int, detail string) Problem {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = "unknown"
	}
	title := http.StatusText(status)
	if status == http.StatusUnprocessableEntity {
		title = "Validation Error"
	}
	return Problem{
		Type:     problemBaseURI + slug,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func encodeProblem(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "component", "api", "error", err)
	}
}

// WriteProblem writes an RFC 7807 response with the given status.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	encodeProblem(w, status, newProblem(r, status, detail))
}

// WriteProblemWithErrors writes a 422 response listing field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	status := http.StatusUnprocessableEntity
	encodeProblem(w, status, ProblemWithErrors{
		Problem: newProblem(r, status, detail),
		Errors:  errs,
	})
}

// MapArchiveError answers a failed archive read. Internal details stay in
// the log.
func MapArchiveError(w http.ResponseWriter, r *http.Request, err error) {
	log := slog.With("component", "api", "path", r.URL.Path, "error", err)
	switch {
	case errors.Is(err, archive.ErrInvalidOwner), errors.Is(err, archive.ErrInvalidSessionKey):
		WriteProblem(w, r, http.StatusBadRequest, "Invalid athlete or session")
	case errors.Is(err, archive.ErrCorruptRecord):
		log.Warn("corrupt record requested")
		WriteProblem(w, r, http.StatusInternalServerError, "Record is unreadable")
	default:
		log.Error("archive read failed")
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
