package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/backup"
	"github.com/hyperengineering/mykrok/internal/validation"
)

var (
	socialAthlete string
	socialAfter   string
	socialBefore  string
	socialLimit   int
)

var refreshSocialCmd = &cobra.Command{
	Use:   "refresh-social",
	Short: "Refresh comments and kudos of archived activities",
	Args:  noArgs,
	RunE:  runRefreshSocial,
}

func init() {
	refreshSocialCmd.Flags().StringVar(&socialAthlete, "athlete", "", "Archive owner (default: authenticated athlete)")
	refreshSocialCmd.Flags().StringVar(&socialAfter, "after", "", "Only activities starting at or after this date")
	refreshSocialCmd.Flags().StringVar(&socialBefore, "before", "", "Only activities starting before this date")
	refreshSocialCmd.Flags().IntVar(&socialLimit, "limit", 0, "Maximum number of activities to check (0 = no limit)")
}

func runRefreshSocial(cmd *cobra.Command, args []string) error {
	after, before, err := parseWindow(socialAfter, socialBefore)
	if err != nil {
		return err
	}
	opts := backup.SocialOptions{
		Owner:  socialAthlete,
		After:  after,
		Before: before,
		Limit:  socialLimit,
	}
	if err := usageFromValidation(validation.ValidateSocialOptions(opts)); err != nil {
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

	result, err := svc.RefreshSocial(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Athlete: %s\n", result.Athlete)
	fmt.Fprintf(w, "Checked: %d\n", result.Checked)
	fmt.Fprintf(w, "Updated: %d\n", result.Updated)
	for _, se := range result.Errors {
		fmt.Fprintf(w, "  activity %d: %s\n", se.ActivityID, se.Error)
	}
	if result.Halted {
		fmt.Fprintf(w, "Halted: %s\n", result.HaltError)
	}
	return nil
}
