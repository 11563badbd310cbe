package store

import "context"

// AddPackage records that module installed name
func (s *Store) AddPackage(ctx context.Context, module, name string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	moduleID, err := s.moduleID(ctx, module)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(&packageRow{ModuleID: moduleID, Name: name}).
		On("CONFLICT (module_id, name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to add package %s for %s", name, module)
	}
	return nil
}

// RemovePackage forgets that module installed name
func (s *Store) RemovePackage(ctx context.Context, module, name string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	_, err = s.db.NewDelete().
		Model((*packageRow)(nil)).
		Where("name = ?", name).
		Where("module_id IN (?)", s.db.NewSelect().Model((*moduleRow)(nil)).Column("id").Where("name = ?", module)).
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to remove package %s of %s", name, module)
	}
	return nil
}

// GetModulePackages returns the packages recorded for module
func (s *Store) GetModulePackages(ctx context.Context, module string) ([]string, error) {
	return s.packageNames(ctx, "m.name = ?", module)
}

// GetOtherModulePackages returns the packages recorded for every module
// except module
func (s *Store) GetOtherModulePackages(ctx context.Context, module string) ([]string, error) {
	return s.packageNames(ctx, "m.name != ?", module)
}

func (s *Store) packageNames(ctx context.Context, where, module string) ([]string, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var names []string
	err = s.db.NewSelect().
		Model((*packageRow)(nil)).
		ColumnExpr("DISTINCT p.name").
		Join("JOIN modules AS m ON m.id = p.module_id").
		Where(where, module).
		OrderExpr("p.name").
		Scan(ctx, &names)
	if err != nil {
		return nil, storeErr(err, "failed to list packages")
	}
	return names, nil
}
