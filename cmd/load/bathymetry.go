package main

import (
	"fmt"
	"os"

	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/spf13/cobra"
)

func newBathymetryCmd(setup func() (*env, error)) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "bathymetry <grid.nc>",
		Short: "Aggregate a gridded elevation NetCDF file to mean depth per cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()
			if workers <= 0 {
				workers = e.cfg.BathymetryWorkers
			}

			ctx, cancel := signalContext()
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			g, err := dataset.ReadGrid(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			e.logger.Info("grid read", "lat", len(g.Lat), "lon", len(g.Lon), "workers", workers)

			job, err := dataset.Bathymetry(ctx, g, workers)
			if err != nil {
				return err
			}
			return loadJobs(ctx, e, job)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "aggregation workers (default BATHYMETRY_WORKERS)")
	return cmd
}
