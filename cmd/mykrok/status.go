package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/validation"
)

var (
	statusAthlete  string
	statusRuns     int
	retriesPending bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and recent runs",
	Long:  "Show the sync cursor, retry backlog and recent runs of each archived athlete. Works offline.",
	Args:  noArgs,
	RunE:  runStatus,
}

var retriesCmd = &cobra.Command{
	Use:   "retries",
	Short: "List activities waiting for a retry",
	Long:  "List the retry queue of each archived athlete, including permanently failed activities. Works offline.",
	Args:  noArgs,
	RunE:  runRetries,
}

func init() {
	statusCmd.Flags().StringVar(&statusAthlete, "athlete", "", "Only this archive owner")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to show")
	retriesCmd.Flags().StringVar(&statusAthlete, "athlete", "", "Only this archive owner")
	retriesCmd.Flags().BoolVar(&retriesPending, "pending", false, "Only activities still scheduled for a retry")
}

// loadStatuses reads the ledger of every selected owner without contacting
// the remote.
func loadStatuses(cmd *cobra.Command, runs int) ([]*backup.OwnerStatus, error) {
	if statusAthlete != "" {
		if verr := validation.ValidateOwner("athlete", statusAthlete); verr != nil {
			return nil, usageFromValidation([]validation.ValidationError{*verr})
		}
	}
	if runs < 0 {
		return nil, usageErrorf("invalid arguments: runs: must be non-negative")
	}

	e, err := setup(cmd)
	if err != nil {
		return nil, err
	}

	owners := []string{statusAthlete}
	if statusAthlete == "" {
		owners, err = e.archive.Owners()
		if err != nil {
			return nil, err
		}
	}

	statuses := make([]*backup.OwnerStatus, 0, len(owners))
	for _, owner := range owners {
		st, err := backup.ReadStatus(cmd.Context(), e.archive, owner, e.cfg.Retry.Policy(), runs)
		if err != nil {
			return nil, fmt.Errorf("read status of %s: %w", owner, err)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	statuses, err := loadStatuses(cmd, statusRuns)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), statuses)
	}

	w := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No archived athletes.")
		return nil
	}
	for i, st := range statuses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Athlete:        %s\n", st.Athlete)
		fmt.Fprintf(w, "Last sync:      %s\n", formatTime(st.State.LastSync))
		fmt.Fprintf(w, "Last activity:  %s\n", formatTime(st.State.LastActivityDate))
		fmt.Fprintf(w, "Total synced:   %d\n", st.State.TotalActivities)
		fmt.Fprintf(w, "Retries:        %d pending, %d permanently failed\n", st.PendingRetries, st.PermanentFailures)
		if len(st.Runs) == 0 {
			continue
		}
		fmt.Fprintln(w)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "RUN\tSTARTED\tCANDIDATES\tSYNCED\tNEW\tERRORS")
		for _, r := range st.Runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
				r.RunID, r.StartedAt.Format(time.RFC3339), r.Candidates, r.ActivitiesSynced, r.ActivitiesNew, r.Errors)
		}
		tw.Flush()
	}
	return nil
}

func runRetries(cmd *cobra.Command, args []string) error {
	statuses, err := loadStatuses(cmd, 0)
	if err != nil {
		return err
	}
	if retriesPending {
		for _, st := range statuses {
			kept := st.Retries[:0]
			for _, e := range st.Retries {
				if !e.PermanentlyFailed() {
					kept = append(kept, e)
				}
			}
			st.Retries = kept
		}
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), statuses)
	}
	printRetries(cmd.OutOrStdout(), statuses)
	return nil
}

func printRetries(w io.Writer, statuses []*backup.OwnerStatus) {
	total := 0
	for _, st := range statuses {
		total += len(st.Retries)
	}
	if total == 0 {
		fmt.Fprintln(w, "No queued retries.")
		return
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ATHLETE\tACTIVITY\tTYPE\tATTEMPTS\tNEXT RETRY\tLAST ERROR")
	for _, st := range statuses {
		for _, e := range st.Retries {
			next := "never"
			if e.NextRetryAfter != nil {
				next = e.NextRetryAfter.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\t%s\n",
				st.Athlete, e.RecordID, e.FailureType, e.RetryCount, next, e.LastError)
		}
	}
	tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
