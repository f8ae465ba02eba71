package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/spf13/cobra"
)

func newTaggingCmd(setup func() (*env, error)) *cobra.Command {
	var tracks, inventory, series string
	cmd := &cobra.Command{
		Use:   "tagging",
		Short: "Load tag tracks, deployment inventory and time series exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tracks == "" && inventory == "" && series == "" {
				return errors.New("at least one of --tracks, --inventory or --time-series is required")
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext()
			defer cancel()

			var jobs []dataset.Job
			for _, in := range []struct {
				path string
				read func(io.Reader) (dataset.Job, error)
			}{
				{tracks, dataset.TagTracks},
				{inventory, dataset.TagInventory},
				{series, dataset.TagTimeSeries},
			} {
				if in.path == "" {
					continue
				}
				job, err := readFile(in.path, in.read)
				if err != nil {
					return fmt.Errorf("%s: %w", in.path, err)
				}
				jobs = append(jobs, job)
			}
			return loadJobs(ctx, e, jobs...)
		},
	}
	cmd.Flags().StringVar(&tracks, "tracks", "", "most likely tracks CSV")
	cmd.Flags().StringVar(&inventory, "inventory", "", "deployment inventory CSV")
	cmd.Flags().StringVar(&series, "time-series", "", "depth and temperature time series CSV")
	return cmd
}
