package suite

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Outcome pairs a scenario file with its report or the reason it has none.
type Outcome struct {
	Path   string
	Name   string
	Report *Report
	Err    error
}

// FindScenarioFiles returns scenario files under dir in lexical order.
// filter is a glob matched against the file name without extension; empty
// matches everything. Files under golden/ directories are skipped.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "golden" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsScenarioFile(path) {
			return nil
		}

		if filter != "" {
			base := filepath.Base(path)
			name := strings.TrimSuffix(base, filepath.Ext(base))
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// RunAll loads and runs every scenario file, at most parallel at a time.
// Scenarios are independent pages, so order of execution does not matter;
// outcomes are returned in the order of paths. A scenario that fails to load
// or run is reported in its Outcome. The returned error is non-nil only when
// ctx ends.
func RunAll(ctx context.Context, paths []string, parallel int, opts ...Option) ([]Outcome, error) {
	if parallel < 1 {
		parallel = 1
	}
	outcomes := make([]Outcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range paths {
		g.Go(func() error {
			out := Outcome{Path: path, Name: filepath.Base(path)}
			defer func() { outcomes[i] = out }()

			scenario, err := LoadScenario(path)
			if err != nil {
				out.Err = fmt.Errorf("failed to load scenario: %w", err)
				return nil
			}
			out.Name = scenario.Name

			report, err := Run(gctx, scenario, opts...)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out.Err = fmt.Errorf("execution failed: %w", err)
				return nil
			}
			out.Report = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
