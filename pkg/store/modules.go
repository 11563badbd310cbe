package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Module is a deployed module
type Module struct {
	Name     string
	Location string
	User     string
	Reason   types.Reason
	Depends  []string
	Date     time.Time
}

func (r *moduleRow) toModule() (*Module, error) {
	m := &Module{
		Name:     r.Name,
		Location: r.Location,
		User:     r.User,
		Reason:   types.Reason(r.Reason),
		Date:     r.Date,
	}
	if r.Depends != nil && *r.Depends != "" {
		if err := json.Unmarshal([]byte(*r.Depends), &m.Depends); err != nil {
			return nil, errors.Wrapf(err, errors.ErrStore, "corrupt depends for module %s", r.Name)
		}
	}
	return m, nil
}

// AddModule records a module. An existing row is left untouched except
// that an automatic module requested as manual is promoted.
func (s *Store) AddModule(ctx context.Context, m Module) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	var depends *string
	if len(m.Depends) > 0 {
		data, err := json.Marshal(m.Depends)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to encode depends of %s", m.Name)
		}
		depends = strPtr(string(data))
	}

	user := m.User
	if user == "" {
		user = s.user
	}
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO modules (name, location, user, reason, depends, date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET reason = excluded.reason
		WHERE modules.reason = ? AND excluded.reason = ?`,
		m.Name, m.Location, user, string(m.Reason), depends, date,
		string(types.ReasonAutomatic), string(types.ReasonManual),
	)
	if err != nil {
		return storeErr(err, "failed to add module %s", m.Name)
	}
	return nil
}

// GetModule returns the named module or nil when it is not stored
func (s *Store) GetModule(ctx context.Context, name string) (*Module, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var row moduleRow
	err = s.db.NewSelect().Model(&row).Where("name = ?", name).Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "failed to get module %s", name)
	}
	return row.toModule()
}

// GetAllModules returns every stored module ordered by name
func (s *Store) GetAllModules(ctx context.Context) ([]Module, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var rows []moduleRow
	if err := s.db.NewSelect().Model(&rows).Order("name").Scan(ctx); err != nil {
		return nil, storeErr(err, "failed to list modules")
	}

	modules := make([]Module, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toModule()
		if err != nil {
			return nil, err
		}
		modules = append(modules, *m)
	}
	return modules, nil
}

// RemoveModule deletes a module together with its files, packages,
// tasks and messages
func (s *Store) RemoveModule(ctx context.Context, name string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := s.db.NewDelete().Model((*moduleRow)(nil)).Where("name = ?", name).Exec(ctx); err != nil {
		return storeErr(err, "failed to remove module %s", name)
	}
	return nil
}
