package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// StoredTask is a cached task with its content identifier
type StoredTask struct {
	UUID uuid.UUID
	Task types.Task
}

func (r *taskRow) toStoredTask() (*StoredTask, error) {
	id, err := uuid.Parse(r.UUID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStore, "corrupt task id %q", r.UUID)
	}
	var t types.Task
	if err := json.Unmarshal([]byte(r.Data), &t); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStore, "corrupt task %s", r.UUID)
	}
	return &StoredTask{UUID: id, Task: t}, nil
}

// AddTask caches task under id for its module and command. A task with
// the same id is already cached and left as is.
func (s *Store) AddTask(ctx context.Context, id uuid.UUID, task types.Task) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	moduleID, err := s.moduleID(ctx, task.Module)
	if err != nil {
		return err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to encode task of %s", task.Module)
	}

	_, err = s.db.NewInsert().
		Model(&taskRow{
			ModuleID: moduleID,
			UUID:     id.String(),
			Command:  string(task.Phase.Command()),
			Data:     string(data),
		}).
		On("CONFLICT (uuid) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to cache task %s", id)
	}
	return nil
}

// GetTaskUUIDs returns the ids of cached tasks of module, or of all
// modules when module is empty
func (s *Store) GetTaskUUIDs(ctx context.Context, module string) ([]uuid.UUID, error) {
	tasks, err := s.queryTasks(ctx, module, "")
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		ids[i] = t.UUID
	}
	return ids, nil
}

// GetTasks returns the cached tasks of module for command
func (s *Store) GetTasks(ctx context.Context, module string, command types.Command) ([]StoredTask, error) {
	return s.queryTasks(ctx, module, command)
}

// GetAllTasks returns the cached tasks of every module for command
func (s *Store) GetAllTasks(ctx context.Context, command types.Command) ([]StoredTask, error) {
	return s.queryTasks(ctx, "", command)
}

// GetTask returns the cached task with id or nil
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*StoredTask, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var row taskRow
	err = s.db.NewSelect().Model(&row).Where("uuid = ?", id.String()).Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "failed to get task %s", id)
	}
	return row.toStoredTask()
}

// RemoveTask drops the cached task with id
func (s *Store) RemoveTask(ctx context.Context, id uuid.UUID) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := s.db.NewDelete().Model((*taskRow)(nil)).Where("uuid = ?", id.String()).Exec(ctx); err != nil {
		return storeErr(err, "failed to remove task %s", id)
	}
	return nil
}

func (s *Store) queryTasks(ctx context.Context, module string, command types.Command) ([]StoredTask, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	q := s.db.NewSelect().
		Model((*taskRow)(nil)).
		ColumnExpr("t.*").
		Join("JOIN modules AS m ON m.id = t.module_id").
		Order("t.id")
	if module != "" {
		q = q.Where("m.name = ?", module)
	}
	if command != "" {
		q = q.Where("t.command = ?", string(command))
	}

	var rows []taskRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, storeErr(err, "failed to list tasks")
	}

	tasks := make([]StoredTask, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toStoredTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}
