// Package state holds the per-owner sync cursor and the window computation
// derived from it.
package state

import (
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

const (
	// StalenessThreshold is how old the previous sync may be before the
	// window is widened by OverlapWindow.
	StalenessThreshold = 24 * time.Hour
	// OverlapWindow tolerates records uploaded out of chronological order.
	OverlapWindow = 24 * time.Hour
)

// SyncState is the durable cursor of one owner.
type SyncState struct {
	LastSync         *time.Time `json:"last_sync"`
	LastActivityDate *time.Time `json:"last_activity_date"`
	TotalActivities  int        `json:"total_activities"`
	LastRunID        string     `json:"last_run_id,omitempty"`
}

// WindowRequest carries the caller-supplied bounds of a sync.
type WindowRequest struct {
	Full   bool
	After  *time.Time
	Before *time.Time
}

// ComputeWindow returns the time range to request from the remote.
// Caller-supplied bounds always take precedence.
func ComputeWindow(s SyncState, req WindowRequest, now time.Time) types.SyncWindow {
	w := types.SyncWindow{Before: utcPtr(req.Before)}

	switch {
	case req.After != nil:
		w.After = utcPtr(req.After)
	case req.Full || s.LastActivityDate == nil:
		// open lower bound
	default:
		after := s.LastActivityDate.UTC()
		if s.LastSync == nil || now.Sub(*s.LastSync) > StalenessThreshold {
			after = after.Add(-OverlapWindow)
		}
		w.After = &after
	}

	return w
}

// Advance records a completed run. LastActivityDate only moves forward and
// is left unchanged when maxSeen is nil.
func (s *SyncState) Advance(now time.Time, maxSeen *time.Time, synced int, runID string) {
	now = now.UTC()
	s.LastSync = &now
	if maxSeen != nil && (s.LastActivityDate == nil || maxSeen.After(*s.LastActivityDate)) {
		m := maxSeen.UTC()
		s.LastActivityDate = &m
	}
	s.TotalActivities = synced
	s.LastRunID = runID
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
