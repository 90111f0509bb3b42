// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/olegiv/textpress-go/internal/model"
	"github.com/olegiv/textpress-go/internal/store"
	"github.com/olegiv/textpress-go/internal/tpxa"
	"github.com/olegiv/textpress-go/internal/util"
	"github.com/olegiv/textpress-go/internal/webhook"
)

// ExportJobName is the name the export job registers under.
const ExportJobName = "tpxa_export"

const (
	exportPrefix     = "tpxa-"
	exportSuffix     = ".xml"
	exportTimeLayout = "20060102T150405.000Z"
	maxNameAttempts  = 100
	exportTimeout    = 30 * time.Minute
)

// Notifier receives the outcome of every scheduled export.
type Notifier interface {
	DispatchEvent(ctx context.Context, eventType string, data any) error
}

// ExportJob writes TPXA exports into a directory and keeps the newest ones.
type ExportJob struct {
	engine   *store.Engine
	managers *model.Managers
	blog     tpxa.Blog
	dir      string
	keep     int
	opts     []tpxa.Option
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

// NewExportJob creates an export job writing into dir and keeping the keep
// newest exports. opts are passed to every writer.
func NewExportJob(engine *store.Engine, m *model.Managers, blog tpxa.Blog, dir string, keep int, logger *slog.Logger, opts ...tpxa.Option) *ExportJob {
	return &ExportJob{
		engine:   engine,
		managers: m,
		blog:     blog,
		dir:      dir,
		keep:     max(keep, 1),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier makes the job report every scheduled run to n.
func (j *ExportJob) SetNotifier(n Notifier) {
	j.notifier = n
}

// Register adds the job to s under schedule.
func (j *ExportJob) Register(s *Scheduler, schedule string) error {
	return s.Register(ExportJobName, "Write a TPXA export of the blog", schedule, j.run)
}

func (j *ExportJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	path, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("scheduled export failed", "error", err)
		j.notify(ctx, webhook.EventExportFailed, webhook.ExportEventData{Error: err.Error()})
		return
	}

	data := webhook.ExportEventData{File: filepath.Base(path)}
	if fi, err := os.Stat(path); err == nil {
		data.Bytes = fi.Size()
	}
	j.notify(ctx, webhook.EventExportCompleted, data)
}

func (j *ExportJob) notify(ctx context.Context, eventType string, data webhook.ExportEventData) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.DispatchEvent(ctx, eventType, data); err != nil {
		j.logger.Warn("export notification failed", "event", eventType, "error", err)
	}
}

// RunOnce writes one export in a session scope of its own and prunes old
// exports. It returns the path of the new file. The file appears under its
// final name only once it is complete.
func (j *ExportJob) RunOnce(ctx context.Context) (string, error) {
	if err := os.MkdirAll(j.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	base := exportPrefix + j.now().UTC().Format(exportTimeLayout)

	tmp, err := os.CreateTemp(j.dir, ".tpxa-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ctx, _ = j.engine.Enter(ctx)
	defer func() { _ = store.Remove(ctx) }()

	writer := tpxa.NewWriter(j.managers, j.blog, j.opts...)
	n, err := writer.WriteTo(ctx, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing export: %w", err)
	}
	final, err := j.publish(tmpPath, base)
	_ = os.Remove(tmpPath)
	if err != nil {
		return "", err
	}

	j.logger.Info("export written", "path", final, "bytes", n)

	removed, err := j.prune()
	if err != nil {
		j.logger.Warn("pruning old exports failed", "error", err)
	} else if removed > 0 {
		j.logger.Info("pruned old exports", "removed", removed, "kept", j.keep)
	}
	return final, nil
}

// publish links the finished temp file under base plus the export suffix.
// An existing export is never replaced: a taken name gets a counter, as
// in tpxa-<time>_001.xml.
func (j *ExportJob) publish(tmpPath, base string) (string, error) {
	for i := range maxNameAttempts {
		name := base + exportSuffix
		if i > 0 {
			name = fmt.Sprintf("%s_%03d%s", base, i, exportSuffix)
		}
		final, err := util.SafeJoinPath(j.dir, name)
		if err != nil {
			return "", err
		}
		err = os.Link(tmpPath, final)
		if err == nil {
			return final, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publishing export: %w", err)
		}
	}
	return "", fmt.Errorf("publishing export: no free name for %s", base)
}

// Exports returns the names of the exports in the directory, oldest first.
func (j *ExportJob) Exports() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, exportPrefix) && strings.HasSuffix(name, exportSuffix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (j *ExportJob) prune() (int, error) {
	names, err := j.Exports()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(names)-removed > j.keep {
		if err := os.Remove(filepath.Join(j.dir, names[removed])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
