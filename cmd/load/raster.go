package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/spf13/cobra"
)

func newRasterCmd(setup func() (*env, error)) *cobra.Command {
	var (
		product string
		date    string
	)
	cmd := &cobra.Command{
		Use:   "raster <pixels.csv>...",
		Short: "Load monthly composite pixel exports",
		Long: "Each CSV holds the pixels of one composite window. Its target date is\n" +
			"--date, or when --date is empty the YYYY-MM-DD date embedded in the file name.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := dataset.RasterProducts[product]
			if !ok {
				return fmt.Errorf("unknown product %q, want one of %s", product, productNames())
			}
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := signalContext()
			defer cancel()

			for _, path := range args {
				target, err := compositeDate(date, path)
				if err != nil {
					return err
				}
				job, err := readFile(path, func(r io.Reader) (dataset.Job, error) {
					return dataset.Raster(r, p, target)
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := loadJobs(ctx, e, job); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				e.logger.Info("composite loaded", "product", p.Name, "date", target.Format(time.DateOnly), "cells", job.Batch.Len())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&product, "product", dataset.Chlorophyll.Name, "raster product: "+productNames())
	cmd.Flags().StringVar(&date, "date", "", "composite target date (YYYY-MM-DD)")
	return cmd
}

func productNames() string {
	names := make([]string, 0, len(dataset.RasterProducts))
	for n := range dataset.RasterProducts {
		names = append(names, n)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// compositeDate returns flag when set, else the first YYYY-MM-DD run in the
// file name.
func compositeDate(flag, path string) (time.Time, error) {
	if flag != "" {
		return time.Parse(time.DateOnly, flag)
	}
	name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".gz"), ".csv")
	for i := 0; i+len(time.DateOnly) <= len(name); i++ {
		if t, err := time.Parse(time.DateOnly, name[i:i+len(time.DateOnly)]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: no --date given and no YYYY-MM-DD in file name", path)
}
