package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/types"
	"github.com/hyperengineering/mykrok/internal/validation"
)

var (
	syncFull   bool
	syncAfter  string
	syncBefore string
	syncLimit  int
	syncIDs    []int64
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Back up new and changed activities",
	Long: `Fetch activities from Strava and store them in the archive.

Without flags only activities since the newest archived one are fetched,
reaching back a further 24 hours when the last sync is older than a day. Failed activities are queued and retried with
exponential backoff on later runs.`,
	Args: noArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Ignore the stored cursor and fetch the whole history")
	syncCmd.Flags().StringVar(&syncAfter, "after", "", "Only activities starting at or after this date")
	syncCmd.Flags().StringVar(&syncBefore, "before", "", "Only activities starting before this date")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Maximum number of activities to fetch (0 = no limit)")
	syncCmd.Flags().Int64SliceVar(&syncIDs, "id", nil, "Only process these activity IDs (repeatable)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Report what would be synced without writing anything")
}

func runSync(cmd *cobra.Command, args []string) error {
	after, before, err := parseWindow(syncAfter, syncBefore)
	if err != nil {
		return err
	}
	opts := backup.SyncOptions{
		Full:        syncFull,
		After:       after,
		Before:      before,
		Limit:       syncLimit,
		ActivityIDs: syncIDs,
		DryRun:      syncDryRun,
	}
	if err := usageFromValidation(validation.ValidateSyncOptions(opts)); err != nil {
		return err
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	svc, err := e.newService(cmd)
	if err != nil {
		return err
	}

	result, err := svc.Sync(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printSyncResult(cmd.OutOrStdout(), result)
	return nil
}

func printSyncResult(w io.Writer, r *types.SyncResult) {
	prefix := ""
	if r.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Fprintf(w, "%sAthlete:    %s\n", prefix, r.Athlete)
	fmt.Fprintf(w, "%sCandidates: %d\n", prefix, r.Candidates)
	fmt.Fprintf(w, "%sSynced:     %d (%d new, %d updated)\n", prefix, r.ActivitiesSynced, r.ActivitiesNew, r.ActivitiesUpdated)
	fmt.Fprintf(w, "%sPhotos:     %d\n", prefix, r.PhotosDownloaded)
	if r.RetriesSucceeded > 0 || r.RetriesFailed > 0 || r.PendingRetries > 0 {
		fmt.Fprintf(w, "%sRetries:    %d succeeded, %d failed, %d pending\n", prefix, r.RetriesSucceeded, r.RetriesFailed, r.PendingRetries)
	}
	if r.MirroredFiles > 0 {
		fmt.Fprintf(w, "%sMirrored:   %d files\n", prefix, r.MirroredFiles)
	}
	if len(r.Errors) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d activities failed:\n", len(r.Errors))
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ACTIVITY\tTYPE\tATTEMPTS\tNEXT RETRY\tERROR")
	for _, se := range r.Errors {
		next := "-"
		if se.NextRetryAfter != nil {
			next = se.NextRetryAfter.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", se.ActivityID, se.FailureType, se.RetryCount, next, se.Error)
	}
	tw.Flush()
}
