package retry

import (
	"errors"
	"sort"
	"time"

	"github.com/hyperengineering/mykrok/internal/types"
)

// Entry is the retry record for one failed activity.
type Entry struct {
	RecordID    int64       `json:"record_id"`
	RetryCount  int         `json:"retry_count"`
	FailureType FailureType `json:"failure_type"`
	LastError   string      `json:"last_error"`
	// NextRetryAfter is nil once the entry is permanently failed.
	NextRetryAfter *time.Time `json:"next_retry_after,omitempty"`
	FirstFailedAt  time.Time  `json:"first_failed_at"`
	LastFailedAt   time.Time  `json:"last_failed_at"`
}

// PermanentlyFailed reports whether the entry will no longer be retried.
func (e Entry) PermanentlyFailed() bool {
	return e.NextRetryAfter == nil
}

// Queue is the per-owner ledger of records that failed processing.
// It holds at most one entry per record ID. Not safe for concurrent use.
type Queue struct {
	policy  Policy
	entries map[int64]*Entry
}

// NewQueue creates an empty queue.
func NewQueue(policy Policy) *Queue {
	return &Queue{
		policy:  policy,
		entries: make(map[int64]*Entry),
	}
}

// Restore rebuilds a queue from persisted entries. A later duplicate ID
// replaces an earlier one.
func Restore(policy Policy, entries []Entry) *Queue {
	q := NewQueue(policy)
	for _, e := range entries {
		e := e
		q.entries[e.RecordID] = &e
	}
	return q
}

// Policy returns the backoff policy of the queue.
func (q *Queue) Policy() Policy {
	return q.policy
}

// AddFailure records a failure for recordID and returns the updated entry.
// An existing entry is incremented and rescheduled, never replaced.
func (q *Queue) AddFailure(recordID int64, err error, now time.Time) Entry {
	now = now.UTC()
	failureType := Classify(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	e, ok := q.entries[recordID]
	if !ok {
		e = &Entry{
			RecordID:      recordID,
			FirstFailedAt: now,
		}
		q.entries[recordID] = e
	}
	e.RetryCount++
	e.FailureType = failureType
	e.LastError = msg
	e.LastFailedAt = now

	// Throttling says nothing about the record itself, so it never exhausts it.
	if failureType != FailureRateLimited && e.RetryCount > q.policy.MaxRetries {
		e.NextRetryAfter = nil
		return *e
	}

	delay := q.policy.Delay(e.RetryCount)
	var rl *types.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > delay {
		delay = rl.RetryAfter
	}
	next := now.Add(delay)
	e.NextRetryAfter = &next
	return *e
}

// Remove deletes the entry for recordID. It reports whether one existed.
func (q *Queue) Remove(recordID int64) bool {
	if _, ok := q.entries[recordID]; !ok {
		return false
	}
	delete(q.entries, recordID)
	return true
}

// Get returns the entry for recordID.
func (q *Queue) Get(recordID int64) (Entry, bool) {
	e, ok := q.entries[recordID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether recordID is queued.
func (q *Queue) Has(recordID int64) bool {
	_, ok := q.entries[recordID]
	return ok
}

// DueRetries returns the entries whose scheduled retry is at or before now,
// earliest first. Permanently failed entries are never due.
func (q *Queue) DueRetries(now time.Time) []Entry {
	var due []Entry
	for _, e := range q.entries {
		if e.NextRetryAfter == nil {
			continue
		}
		if !e.NextRetryAfter.After(now) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRetryAfter.Equal(*due[j].NextRetryAfter) {
			return due[i].RecordID < due[j].RecordID
		}
		return due[i].NextRetryAfter.Before(*due[j].NextRetryAfter)
	})
	return due
}

// PendingCount returns the number of entries that are not permanently failed.
func (q *Queue) PendingCount() int {
	n := 0
	for _, e := range q.entries {
		if e.NextRetryAfter != nil {
			n++
		}
	}
	return n
}

// Len returns the number of entries, permanently failed ones included.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of every entry ordered by record ID.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordID < out[j].RecordID
	})
	return out
}
