package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/retry"
	"github.com/hyperengineering/mykrok/internal/types"
	"github.com/hyperengineering/mykrok/internal/validation"
	"github.com/hyperengineering/mykrok/internal/worker"
)

// SchedulerStatus reports the last scheduled sync. Implemented by
// worker.SyncCoordinator.
type SchedulerStatus interface {
	Last() *worker.RunStatus
}

// Handler implements the API handlers
type Handler struct {
	archive   *archive.Archive
	policy    retry.Policy
	scheduler SchedulerStatus
	version   string
}

// NewHandler creates a new Handler over the archive. scheduler may be nil
// when no scheduled sync runs.
func NewHandler(arc *archive.Archive, policy retry.Policy, scheduler SchedulerStatus, version string) *Handler {
	return &Handler{
		archive:   arc,
		policy:    policy,
		scheduler: scheduler,
		version:   version,
	}
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Athletes int    `json:"athletes"`
}

// AthleteInfo is one entry of GET /api/v1/athletes.
type AthleteInfo struct {
	Athlete  string `json:"athlete"`
	Sessions int    `json:"sessions"`
}

// SessionSummary is one entry of the sessions listing.
type SessionSummary struct {
	Session      string    `json:"session"`
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	SportType    string    `json:"sport_type"`
	StartDate    time.Time `json:"start_date"`
	Distance     float64   `json:"distance"`
	MovingTime   int       `json:"moving_time"`
	HasGPS       bool      `json:"has_gps"`
	PhotoCount   int       `json:"photo_count"`
	KudosCount   int       `json:"kudos_count"`
	CommentCount int       `json:"comment_count"`
}

// TrackResponse is returned by the track endpoint.
type TrackResponse struct {
	Manifest archive.TrackManifest `json:"manifest"`
	Streams  *types.StreamSet      `json:"streams"`
}

// SyncStatusResponse is returned by the sync status endpoint.
type SyncStatusResponse struct {
	*backup.OwnerStatus
	Scheduler *worker.RunStatus `json:"scheduler,omitempty"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	owners, err := h.archive.Owners()
	if err != nil {
		slog.Error("health check failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Archive unavailable")
		return
	}

	writeJSON(w, HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Athletes: len(owners),
	})
}

// ListAthletes handles GET /api/v1/athletes
func (h *Handler) ListAthletes(w http.ResponseWriter, r *http.Request) {
	owners, err := h.archive.Owners()
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}

	resp := make([]AthleteInfo, 0, len(owners))
	for _, owner := range owners {
		keys, err := h.archive.SessionKeys(owner)
		if err != nil {
			MapArchiveError(w, r, err)
			return
		}
		resp = append(resp, AthleteInfo{Athlete: owner, Sessions: len(keys)})
	}
	writeJSON(w, resp)
}

// ListSessions handles GET /api/v1/athletes/{athlete}/sessions
//
// Query parameters: after, before (date or RFC 3339), limit.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var c validation.Collector
	after, verr := validation.ParseDate("after", q.Get("after"))
	c.Add(verr)
	before, verr := validation.ParseDate("before", q.Get("before"))
	c.Add(verr)
	limit, verr := validation.ParseLimit("limit", q.Get("limit"))
	c.Add(verr)
	c.Add(validation.ValidateWindow(after, before))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid query parameters", c.Errors())
		return
	}

	acts, err := h.archive.ListAll(owner)
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}

	resp := make([]SessionSummary, 0, len(acts))
	for _, act := range acts {
		if after != nil && act.StartDate.Before(*after) {
			continue
		}
		if before != nil && !act.StartDate.Before(*before) {
			continue
		}
		resp = append(resp, summarize(act))
		if limit > 0 && len(resp) >= limit {
			break
		}
	}
	writeJSON(w, resp)
}

// GetSession handles GET /api/v1/athletes/{athlete}/sessions/{session}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	owner, key, ok := h.session(w, r)
	if !ok {
		return
	}

	act, err := h.archive.Load(owner, key)
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}
	if act == nil {
		WriteProblem(w, r, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, act)
}

// GetTrack handles GET /api/v1/athletes/{athlete}/sessions/{session}/track
func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	owner, key, ok := h.session(w, r)
	if !ok {
		return
	}

	manifest, streams, err := h.archive.LoadTracking(owner, key)
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}
	if manifest == nil {
		WriteProblem(w, r, http.StatusNotFound, "Session has no track")
		return
	}
	writeJSON(w, TrackResponse{Manifest: *manifest, Streams: streams})
}

// ListPhotos handles GET /api/v1/athletes/{athlete}/sessions/{session}/photos
func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	owner, key, ok := h.session(w, r)
	if !ok {
		return
	}

	names, err := h.archive.PhotoFiles(owner, key)
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

// GetPhoto handles GET /api/v1/athletes/{athlete}/sessions/{session}/photos/{photo}
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	owner, key, ok := h.session(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "photo")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid photo name")
		return
	}
	if !h.archive.PhotoExists(owner, key, name) {
		WriteProblem(w, r, http.StatusNotFound, "Photo not found")
		return
	}
	http.ServeFile(w, r, filepath.Join(h.archive.PhotosDir(owner, key), name))
}

// GetGear handles GET /api/v1/athletes/{athlete}/gear
func (h *Handler) GetGear(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	gear, err := h.archive.LoadGear(owner)
	if err != nil {
		MapArchiveError(w, r, err)
		return
	}
	writeJSON(w, gear)
}

// SyncStatus handles GET /api/v1/athletes/{athlete}/sync
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	status, err := backup.ReadStatus(r.Context(), h.archive, owner, h.policy, 10)
	if err != nil {
		slog.Error("read sync status failed", "component", "api", "athlete", owner, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	resp := SyncStatusResponse{OwnerStatus: status}
	if h.scheduler != nil {
		resp.Scheduler = h.scheduler.Last()
	}
	writeJSON(w, resp)
}

// owner validates the athlete path parameter and checks it exists.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := chi.URLParam(r, "athlete")
	if verr := validation.ValidateOwner("athlete", owner); verr != nil {
		WriteProblemWithErrors(w, r, "Invalid path parameters", []validation.ValidationError{*verr})
		return "", false
	}
	owners, err := h.archive.Owners()
	if err != nil {
		MapArchiveError(w, r, err)
		return "", false
	}
	for _, o := range owners {
		if o == owner {
			return owner, true
		}
	}
	WriteProblem(w, r, http.StatusNotFound, "Athlete not found")
	return "", false
}

// session validates the athlete and session path parameters.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return "", "", false
	}
	key := chi.URLParam(r, "session")
	if verr := validation.ValidateSessionKey("session", key); verr != nil {
		WriteProblemWithErrors(w, r, "Invalid path parameters", []validation.ValidationError{*verr})
		return "", "", false
	}
	return owner, key, true
}

func summarize(act *types.Activity) SessionSummary {
	return SessionSummary{
		Session:      archive.SessionKey(act.StartDate),
		ID:           act.ID,
		Name:         act.Name,
		Type:         act.Type,
		SportType:    act.SportType,
		StartDate:    act.StartDate,
		Distance:     act.Distance,
		MovingTime:   act.MovingTime,
		HasGPS:       act.HasGPS,
		PhotoCount:   act.PhotoCount,
		KudosCount:   act.KudosCount,
		CommentCount: act.CommentCount,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}
