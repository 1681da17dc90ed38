package types

import "time"

// SyncWindow is the time range requested from the remote for one run.
// A nil bound is open.
type SyncWindow struct {
	After  *time.Time `json:"after,omitempty"`
	Before *time.Time `json:"before,omitempty"`
}

// SyncError describes one record that failed a required step.
type SyncError struct {
	ActivityID     int64      `json:"activity_id"`
	Error          string     `json:"error"`
	FailureType    string     `json:"failure_type"`
	RetryCount     int        `json:"retry_count"`
	NextRetryAfter *time.Time `json:"next_retry_after,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
}

// RecordStatus values.
const (
	StatusNew    = "new"
	StatusUpdate = "update"
	StatusFailed = "failed"
)

// RecordReport is the per-record line of a sync result.
type RecordReport struct {
	ActivityID int64    `json:"activity_id"`
	Name       string   `json:"name,omitempty"`
	Session    string   `json:"session,omitempty"`
	Status     string   `json:"status"`
	Retry      bool     `json:"retry,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// SyncResult is returned by every sync invocation, even when records failed.
type SyncResult struct {
	RunID             string         `json:"run_id"`
	Athlete           string         `json:"athlete"`
	DryRun            bool           `json:"dry_run"`
	Window            SyncWindow     `json:"window"`
	Candidates        int            `json:"candidates"`
	ActivitiesSynced  int            `json:"activities_synced"`
	ActivitiesNew     int            `json:"activities_new"`
	ActivitiesUpdated int            `json:"activities_updated"`
	PhotosDownloaded  int            `json:"photos_downloaded"`
	RetriesSucceeded  int            `json:"retries_succeeded"`
	RetriesFailed     int            `json:"retries_failed"`
	PendingRetries    int            `json:"pending_retries"`
	MirroredFiles     int            `json:"mirrored_files,omitempty"`
	Records           []RecordReport `json:"records"`
	Errors            []SyncError    `json:"errors"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}

// SocialRefreshResult is returned by a social refresh pass.
type SocialRefreshResult struct {
	Athlete   string      `json:"athlete"`
	Checked   int         `json:"checked"`
	Updated   int         `json:"updated"`
	Halted    bool        `json:"halted"`
	HaltError string      `json:"halt_error,omitempty"`
	Errors    []SyncError `json:"errors"`
}

// IntegrityIssue describes one discrepancy between a record and the files on disk.
type IntegrityIssue struct {
	Session  string `json:"session"`
	Activity int64  `json:"activity_id"`
	Kind     string `json:"kind"` // "photos" or "track"
	Detail   string `json:"detail"`
	Fixed    bool   `json:"fixed"`
	Error    string `json:"error,omitempty"`
}

// IntegrityResult is returned by a check-and-fix pass.
type IntegrityResult struct {
	Athlete         string           `json:"athlete"`
	Checked         int              `json:"checked"`
	Issues          []IntegrityIssue `json:"issues"`
	Fixed           int              `json:"fixed"`
	PhotosRecovered int              `json:"photos_recovered"`
	Halted          bool             `json:"halted"`
	DryRun          bool             `json:"dry_run"`
}
