// Package cli implements the ncadmin subcommands against small interfaces so
// they can run without a database in tests.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ncompliance/ncompliance/internal/commoncodes"
	"github.com/ncompliance/ncompliance/internal/notifications"
	"github.com/ncompliance/ncompliance/jobs"
)

// Sweeper is the part of notifications.Sweeper the sweep command drives.
type Sweeper interface {
	Today() time.Time
	Run(ctx context.Context, today time.Time) (notifications.SweepResult, error)
	Preview(ctx context.Context, today time.Time) ([]notifications.Due, error)
}

// SweepOptions configures one sweep-expiry invocation.
type SweepOptions struct {
	Date   string
	DryRun bool
	JSON   bool
	Stdout io.Writer
	// Lock, when set, keeps a real run from overlapping the worker's.
	Lock jobs.DayLocker
}

// RunSweep executes the expiry sweep in process. With DryRun set it only
// lists what would be notified.
func RunSweep(ctx context.Context, sweeper Sweeper, opts SweepOptions) error {
	today := sweeper.Today()
	if opts.Date != "" {
		day, err := time.ParseInLocation(time.DateOnly, opts.Date, today.Location())
		if err != nil {
			return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", opts.Date)
		}
		today = day
	}

	if opts.DryRun {
		due, err := sweeper.Preview(ctx, today)
		if err != nil {
			return err
		}
		if opts.JSON {
			return json.NewEncoder(opts.Stdout).Encode(due)
		}
		if len(due) == 0 {
			fmt.Fprintf(opts.Stdout, "%s: nothing due\n", today.Format(time.DateOnly))
			return nil
		}
		for _, d := range due {
			fmt.Fprintf(opts.Stdout, "%s  D-%d  %s  %s\n", d.Regulation.ExpiryDate.Format(time.DateOnly), d.DaysLeft, d.Regulation.Code, d.Regulation.Title)
		}
		return nil
	}

	if opts.Lock != nil {
		unlock, err := opts.Lock(ctx, today)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", today.Format(time.DateOnly), err)
		}
		defer func() { _ = unlock(context.WithoutCancel(ctx)) }()
	}

	res, err := sweeper.Run(ctx, today)
	if opts.JSON {
		if encErr := json.NewEncoder(opts.Stdout).Encode(res); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(opts.Stdout, "%s: %d regulation(s), %d notification(s)\n", today.Format(time.DateOnly), res.Regulations, res.Notifications)
	}
	return err
}

// Seeder stores common codes that are not present yet.
type Seeder interface {
	Seed(ctx context.Context, codes []commoncodes.CommonCode) (commoncodes.SeedResult, error)
}

// SeedOptions configures seed-codes.
type SeedOptions struct {
	// File replaces the embedded defaults.
	File   string
	Stdout io.Writer
}

// LoadSeed reads codes from file, or the embedded defaults when file is empty.
func LoadSeed(file string) ([]commoncodes.CommonCode, error) {
	if file == "" {
		return commoncodes.DefaultCodes()
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return commoncodes.ParseSeed(raw)
}

// RunSeed inserts missing codes and reports the counts.
func RunSeed(ctx context.Context, seeder Seeder, opts SeedOptions) error {
	codes, err := LoadSeed(opts.File)
	if err != nil {
		return err
	}
	res, err := seeder.Seed(ctx, codes)
	if err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "common codes: %d inserted, %d already present\n", res.Inserted, res.Skipped)
	return nil
}

// DumpSeed writes the codes RunSeed would load.
func DumpSeed(w io.Writer, file string) error {
	codes, err := LoadSeed(file)
	if err != nil {
		return err
	}
	return commoncodes.WriteSeed(w, codes)
}
