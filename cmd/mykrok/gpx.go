package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/gpx"
	"github.com/hyperengineering/mykrok/internal/validation"
)

var (
	gpxAthlete     string
	gpxOutputDir   string
	gpxAfter       string
	gpxBefore      string
	gpxWithHR      bool
	gpxWithCadence bool
	gpxWithPower   bool
)

var gpxCmd = &cobra.Command{
	Use:   "gpx [SESSION...]",
	Short: "Export archived tracks as GPX files",
	Long: `Write one GPX file per archived activity that has a GPS track.

Sessions are given by key (for example 20250510T080000); without any, every
activity in the --after/--before window is exported. Heart rate and cadence
are written as Garmin track point extensions, power as a power extension.
Works offline from the archive.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGPX,
}

func init() {
	gpxCmd.Flags().StringVar(&gpxAthlete, "athlete", "", "Archive owner (default: the only owner in the archive)")
	gpxCmd.Flags().StringVarP(&gpxOutputDir, "output-dir", "o", "./gpx", "Output directory")
	gpxCmd.Flags().StringVar(&gpxAfter, "after", "", "Only activities starting after this date (YYYY-MM-DD)")
	gpxCmd.Flags().StringVar(&gpxBefore, "before", "", "Only activities starting before this date (YYYY-MM-DD)")
	gpxCmd.Flags().BoolVar(&gpxWithHR, "with-hr", false, "Include heart rate")
	gpxCmd.Flags().BoolVar(&gpxWithCadence, "with-cadence", false, "Include cadence")
	gpxCmd.Flags().BoolVar(&gpxWithPower, "with-power", false, "Include power")
}

func runGPX(cmd *cobra.Command, args []string) error {
	var c validation.Collector
	if gpxAthlete != "" {
		c.Add(validation.ValidateOwner("athlete", gpxAthlete))
	}
	for _, key := range args {
		c.Add(validation.ValidateSessionKey("session", key))
	}
	c.Add(validation.ValidateRequired("output-dir", gpxOutputDir))
	if c.HasErrors() {
		return usageFromValidation(c.Errors())
	}
	after, before, err := parseWindow(gpxAfter, gpxBefore)
	if err != nil {
		return err
	}
	if verr := validation.ValidateWindow(after, before); verr != nil {
		return usageFromValidation([]validation.ValidationError{*verr})
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}

	owner := gpxAthlete
	if owner == "" {
		owners, err := e.archive.Owners()
		if err != nil {
			return err
		}
		if len(owners) != 1 {
			return usageErrorf("archive holds %d athletes, choose one with --athlete", len(owners))
		}
		owner = owners[0]
	}

	result, err := gpx.NewExporter(e.archive, e.logger).Export(gpx.ExportOptions{
		Owner:     owner,
		OutputDir: gpxOutputDir,
		Sessions:  args,
		After:     after,
		Before:    before,
		Options: gpx.Options{
			HeartRate: gpxWithHR,
			Cadence:   gpxWithCadence,
			Power:     gpxWithPower,
		},
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d activities to %s (%d without track)\n",
		result.Exported, gpxOutputDir, result.Skipped)
	return nil
}
