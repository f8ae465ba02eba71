// Command validate checks the referential integrity of the warehouse: every
// key stored on a fact row has its dimension row, and no dimension table
// holds a key twice.
//
// Usage:
//
//	go run ./cmd/validate
//	go run ./cmd/validate -tables tag_stream,bathymetry
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/backend"
	"github.com/couchcryptid/fishtank-etl/internal/config"
	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// auditor is implemented by every backend session.
type auditor interface {
	CountOrphans(ctx context.Context, factTable, keyColumn, dimTable string) (int64, error)
	CountDuplicateKeys(ctx context.Context, dimTable, keyColumn string) (int64, error)
}

// factKeys lists the dimension keys each fact table carries.
type factKeys struct {
	table   string
	spatial bool
	dates   bool
}

var facts = []factKeys{
	{table: dataset.TagTracksTable, dates: true},
	{table: dataset.TagDataTable, dates: true},
	{table: dataset.Chlorophyll.Table, spatial: true, dates: true},
	{table: dataset.SeaSurfaceTemperature.Table, spatial: true, dates: true},
	{table: dataset.BathymetryTable, spatial: true},
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	skipped []string
	checks  [][]string // table, column, dimension, count
}

func (p *phase) record(table, column, dim string, n int64) {
	p.checks = append(p.checks, []string{table, column, dim, strconv.FormatInt(n, 10)})
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) skipf(format string, args ...any) {
	p.skipped = append(p.skipped, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	tables := flag.String("tables", "", "comma-separated fact tables to check (default: all known, plus STREAM_TABLE)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	checks := append(slices.Clone(facts), factKeys{table: cfg.StreamTable, spatial: true, dates: true})
	if *tables != "" {
		checks = selectFacts(checks, strings.Split(*tables, ","))
	}

	if code := run(cfg, checks, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func selectFacts(all []factKeys, names []string) []factKeys {
	var out []factKeys
	for _, n := range names {
		n = strings.TrimSpace(n)
		found := false
		for _, f := range all {
			if f.table == n {
				out = append(out, f)
				found = true
			}
		}
		if !found {
			// Unknown tables are assumed to carry every key.
			out = append(out, factKeys{table: n, spatial: true, dates: true})
		}
	}
	return out
}

func run(cfg *config.Config, checks []factKeys, w io.Writer) int {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open warehouse: %v\n", err)
		return 1
	}
	defer store.Close()

	s, err := store.Acquire(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: acquire session: %v\n", err)
		return 1
	}
	defer s.Release()

	a, ok := s.(auditor)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s backend cannot audit\n", cfg.WarehouseBackend)
		return 1
	}
	return report(w, cfg.WarehouseBackend, validate(ctx, a, checks))
}

func validate(ctx context.Context, a auditor, checks []factKeys) []*phase {
	return []*phase{
		validateDimensionKeys(ctx, a),
		validateFactKeys(ctx, a, checks),
	}
}

func report(w io.Writer, backendName string, phases []*phase) int {
	fmt.Fprintf(w, "=== Warehouse Integrity Validation (%s) ===\n\n", backendName)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if len(p.checks) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n--- %s: checked ---\n", p.name)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Table", "Column", "Dimension", "Violations"})
		table.AppendBulk(p.checks)
		table.Render()
	}

	for _, p := range phases {
		if len(p.skipped) > 0 {
			fmt.Fprintf(w, "\n--- %s: skipped ---\n", p.name)
			for _, s := range p.skipped {
				fmt.Fprintf(w, "  %s\n", s)
			}
		}
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateDimensionKeys(ctx context.Context, a auditor) *phase {
	p := &phase{name: "Dimension key uniqueness"}
	for _, d := range domain.Dimensions() {
		n, err := a.CountDuplicateKeys(ctx, d.Table, d.KeyColumn)
		switch {
		case errors.Is(err, domain.ErrRelationNotFound):
			p.skipf("%s does not exist", d.Table)
			continue
		case err != nil:
			p.errorf("%s: %v", d.Table, err)
			continue
		case n > 0:
			p.errorf("%s: %d keys appear more than once", d.Table, n)
		}
		p.record(d.Table, d.KeyColumn, d.Table, n)
	}
	return p
}

func validateFactKeys(ctx context.Context, a auditor, checks []factKeys) *phase {
	p := &phase{name: "Fact keys resolve to dimensions"}
	for _, f := range checks {
		var dims []domain.DimensionSchema
		if f.spatial {
			for _, r := range domain.Resolutions {
				dims = append(dims, domain.SpatialSchema(r))
			}
		}
		if f.dates {
			dims = append(dims, domain.DateSchema())
		}
		for _, d := range dims {
			n, err := a.CountOrphans(ctx, f.table, d.KeyColumn, d.Table)
			switch {
			case errors.Is(err, domain.ErrRelationNotFound):
				p.skipf("%s.%s: %s or %s does not exist", f.table, d.KeyColumn, f.table, d.Table)
				continue
			case err != nil:
				p.errorf("%s.%s: %v", f.table, d.KeyColumn, err)
				continue
			case n > 0:
				p.errorf("%s.%s: %d rows reference keys missing from %s", f.table, d.KeyColumn, n, d.Table)
			}
			p.record(f.table, d.KeyColumn, d.Table, n)
		}
	}
	return p
}
