package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/validation"
)

var (
	checkAthlete string
	checkDryRun  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Find and repair missing photos and tracks",
	Long: `Compare every archived activity with the files on disk.

Activities that claim more photos than are stored, or that have GPS data
but no readable track, are re-fetched from Strava. Use --dry-run to only
report the problems.`,
	Args: noArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkAthlete, "athlete", "", "Archive owner (default: authenticated athlete)")
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Report problems without fixing them")
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkAthlete != "" {
		if verr := validation.ValidateOwner("athlete", checkAthlete); verr != nil {
			return usageFromValidation([]validation.ValidationError{*verr})
		}
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	svc, err := e.newService(cmd)
	if err != nil {
		return err
	}

	result, err := svc.CheckAndFix(cmd.Context(), backup.CheckOptions{
		Owner:  checkAthlete,
		DryRun: checkDryRun,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Athlete: %s\n", result.Athlete)
	fmt.Fprintf(w, "Checked: %d\n", result.Checked)
	fmt.Fprintf(w, "Issues:  %d\n", len(result.Issues))
	if !result.DryRun {
		fmt.Fprintf(w, "Fixed:   %d (%d photos recovered)\n", result.Fixed, result.PhotosRecovered)
	}
	if len(result.Issues) > 0 {
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "SESSION\tACTIVITY\tKIND\tFIXED\tDETAIL")
		for _, is := range result.Issues {
			detail := is.Detail
			if is.Error != "" {
				detail += ": " + is.Error
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\n", is.Session, is.Activity, is.Kind, is.Fixed, detail)
		}
		tw.Flush()
	}
	if result.Halted {
		fmt.Fprintln(w, "Halted: rate limited, run again later")
	}
	return nil
}
