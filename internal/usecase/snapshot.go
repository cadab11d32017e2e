package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SnapshotWriter dumps per-template response snapshots for debugging when
// WFR_OUTPUT_DIR is configured. A nil writer is a no-op.
type SnapshotWriter struct {
	Dir string
}

// NewSnapshotWriter returns a writer for dir, or nil when dir is empty.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	if dir == "" {
		return nil
	}
	return &SnapshotWriter{Dir: dir}
}

// Write serializes v to <dir>/<template>-<stage>-<unix-nanos>.json.
// Failures are logged, never propagated; snapshots are best-effort.
func (w *SnapshotWriter) Write(templateName, stage string, v any) {
	if w == nil {
		return
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		slog.Warn("snapshot dir create failed", slog.String("dir", w.Dir), slog.Any("error", err))
		return
	}
	name := fmt.Sprintf("%s-%s-%d.json", templateName, stage, time.Now().UnixNano())
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Warn("snapshot marshal failed", slog.String("file", name), slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filepath.Join(w.Dir, name), b, 0o644); err != nil {
		slog.Warn("snapshot write failed", slog.String("file", name), slog.Any("error", err))
	}
}
