// Package reports reads the latest run verdict bundle produced by the
// trading pipeline. The governance engine only consumes it: publishing is
// gated on the latest runtime assessment and closed-loop report.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Verdict values reported by the pipeline.
const (
	VerdictPass            = "PASS"
	VerdictPassWithActions = "PASS_WITH_ACTIONS"
	VerdictFail            = "FAIL"
)

// File names below the reports root.
const (
	RuntimeAssessFile    = "latest_runtime_assess.json"
	ClosedLoopReportFile = "latest_closed_loop_report.json"
	RunMetaFile          = "latest_run_meta.json"
)

// Bundle is the part of the latest run the publish gate looks at. Missing
// or unreadable reports leave the corresponding field empty.
type Bundle struct {
	RuntimeVerdict string `json:"runtime_verdict"`
	OverallStatus  string `json:"overall_status"`
	RunID          string `json:"run_id,omitempty"`
}

// Source provides the latest bundle.
type Source interface {
	LatestBundle(ctx context.Context) (*Bundle, error)
}

// FSSource reads the bundle from a reports directory.
type FSSource struct {
	root   string
	logger *slog.Logger
}

// NewFSSource creates a source over root.
func NewFSSource(root string, logger *slog.Logger) *FSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSSource{root: root, logger: logger.With("component", "reports")}
}

// LatestBundle implements Source.
func (s *FSSource) LatestBundle(ctx context.Context) (*Bundle, error) {
	var (
		runtime struct {
			Verdict string `json:"verdict"`
		}
		report struct {
			OverallStatus string `json:"overall_status"`
		}
		meta struct {
			RunID string `json:"run_id"`
		}
	)
	s.load(RuntimeAssessFile, &runtime)
	s.load(ClosedLoopReportFile, &report)
	s.load(RunMetaFile, &meta)

	return &Bundle{
		RuntimeVerdict: runtime.Verdict,
		OverallStatus:  report.OverallStatus,
		RunID:          meta.RunID,
	}, nil
}

func (s *FSSource) load(name string, v any) {
	path := filepath.Join(s.root, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read report", "file", path, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ignoring malformed report", "file", path, "error", err)
	}
}

// Allowed returns the verdicts that satisfy the publish gate.
func Allowed(allowPassWithActions bool) []string {
	if allowPassWithActions {
		return []string{VerdictPass, VerdictPassWithActions}
	}
	return []string{VerdictPass}
}
