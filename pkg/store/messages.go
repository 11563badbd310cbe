package store

import (
	"context"

	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// CacheMessage stores a message of module for later display on command
func (s *Store) CacheMessage(ctx context.Context, msg types.Message) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	moduleID, err := s.moduleID(ctx, msg.Module)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(&messageRow{ModuleID: moduleID, Command: string(msg.Command), Message: msg.Text}).
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to cache message for %s", msg.Module)
	}
	return nil
}

// GetCachedMessages returns the messages cached for command, limited to
// module unless module is empty
func (s *Store) GetCachedMessages(ctx context.Context, module string, command types.Command) ([]types.Message, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	q := s.db.NewSelect().
		Model((*messageRow)(nil)).
		ColumnExpr("msg.*").
		ColumnExpr("m.name AS module_name").
		Join("JOIN modules AS m ON m.id = msg.module_id").
		Where("msg.command = ?", string(command)).
		Order("msg.id")
	if module != "" {
		q = q.Where("m.name = ?", module)
	}

	var rows []messageRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, storeErr(err, "failed to list messages")
	}

	msgs := make([]types.Message, len(rows))
	for i, r := range rows {
		msgs[i] = types.Message{Module: r.ModuleName, Command: types.Command(r.Command), Text: r.Message}
	}
	return msgs, nil
}

// RemoveCachedMessages drops the messages of module for command, or for
// every command when command is empty
func (s *Store) RemoveCachedMessages(ctx context.Context, module string, command types.Command) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	q := s.db.NewDelete().
		Model((*messageRow)(nil)).
		Where("module_id IN (?)", s.db.NewSelect().Model((*moduleRow)(nil)).Column("id").Where("name = ?", module))
	if command != "" {
		q = q.Where("command = ?", string(command))
	}
	if _, err := q.Exec(ctx); err != nil {
		return storeErr(err, "failed to remove messages of %s", module)
	}
	return nil
}
