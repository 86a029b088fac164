// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rundir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/report"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// taskMetaLockTimeout bounds waiting for another process updating the same
// task_meta.json.
const taskMetaLockTimeout = 10 * time.Second

// LoadTaskMeta reads task_meta.json. A missing file yields an empty TaskMeta.
func (r *Run) LoadTaskMeta() (types.TaskMeta, error) {
	var meta types.TaskMeta
	if err := fsutil.ReadJSON(r.TaskMetaPath(), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.TaskMeta{}, nil
		}
		return types.TaskMeta{}, fmt.Errorf("loading task metadata: %w", err)
	}
	return meta, nil
}

// UpdateTaskMeta applies fn to the stored task metadata under a file lock,
// then rewrites task_meta.json and task_meta.md.
func (r *Run) UpdateTaskMeta(ctx context.Context, fn func(*types.TaskMeta)) error {
	lockCtx, cancel := context.WithTimeout(ctx, taskMetaLockTimeout)
	defer cancel()

	lock := flock.New(r.TaskMetaPath() + ".lock")
	locked, err := lock.TryLockContext(lockCtx, 25*time.Millisecond)
	if !locked {
		if err == nil {
			err = lockCtx.Err()
		}
		return fmt.Errorf("locking task metadata: %w", err)
	}
	defer lock.Unlock()

	meta, err := r.LoadTaskMeta()
	if err != nil {
		return err
	}
	if meta.RunDir == "" {
		meta.RunDir = r.Dir
	}
	fn(&meta)
	return r.saveTaskMeta(meta)
}

func (r *Run) saveTaskMeta(meta types.TaskMeta) error {
	if err := fsutil.WriteJSON(r.TaskMetaPath(), meta); err != nil {
		return fmt.Errorf("saving task metadata: %w", err)
	}
	md, err := report.TaskMeta(meta, report.NormalizeLanguage(languageOrDefault(meta.Params.Language)))
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(r.TaskMetaMDPath(), []byte(md), 0o644); err != nil {
		return fmt.Errorf("saving task metadata markdown: %w", err)
	}
	return nil
}

// Language returns override when non-blank, else the run's configured
// language, else English.
func Language(override string, meta types.TaskMeta) string {
	if override != "" {
		return override
	}
	return languageOrDefault(meta.Params.Language)
}

func languageOrDefault(lang string) string {
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}
