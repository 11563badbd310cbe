package store

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// File is a deployed, managed file
type File struct {
	Module              string
	Source              string
	SourceChecksum      string
	Destination         string
	DestinationChecksum string
	Operation           types.Operation
	User                string
	Date                time.Time
}

// Checksum pairs a path with the checksum recorded for it
type Checksum struct {
	Path     string
	Checksum string
}

func (r *fileRow) toFile() (*File, error) {
	op, err := types.ParseOperation(r.Operation)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStore, "corrupt operation for %s", r.Destination)
	}
	return &File{
		Module:              r.ModuleName,
		Source:              strVal(r.Source),
		SourceChecksum:      strVal(r.SourceChecksum),
		Destination:         r.Destination,
		DestinationChecksum: strVal(r.DestinationChecksum),
		Operation:           op,
		User:                r.User,
		Date:                r.Date,
	}, nil
}

func (s *Store) selectFiles() *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*fileRow)(nil)).
		ColumnExpr("f.*").
		ColumnExpr("m.name AS module_name").
		Join("JOIN modules AS m ON m.id = f.module_id")
}

// AddFile records a deployed file, replacing every field of an existing
// entry for the same destination
func (s *Store) AddFile(ctx context.Context, f File) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if !f.Operation.Valid() {
		return errors.Newf(errors.ErrInvalidInput, "invalid operation for %s", f.Destination)
	}

	moduleID, err := s.moduleID(ctx, f.Module)
	if err != nil {
		return err
	}

	row := &fileRow{
		ModuleID:            moduleID,
		Source:              strPtr(f.Source),
		SourceChecksum:      strPtr(f.SourceChecksum),
		Destination:         f.Destination,
		DestinationChecksum: strPtr(f.DestinationChecksum),
		Operation:           f.Operation.String(),
		User:                f.User,
		Date:                f.Date,
	}
	if row.User == "" {
		row.User = s.user
	}
	if row.Date.IsZero() {
		row.Date = time.Now()
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (destination) DO UPDATE").
		Set("module_id = EXCLUDED.module_id").
		Set("source = EXCLUDED.source").
		Set("source_checksum = EXCLUDED.source_checksum").
		Set("destination_checksum = EXCLUDED.destination_checksum").
		Set("operation = EXCLUDED.operation").
		Set("user = EXCLUDED.user").
		Set("date = EXCLUDED.date").
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to add file %s", f.Destination)
	}
	return nil
}

// GetFile returns the entry for destination or nil when unmanaged
func (s *Store) GetFile(ctx context.Context, destination string) (*File, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var row fileRow
	err = s.selectFiles().Where("f.destination = ?", destination).Scan(ctx, &row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "failed to get file %s", destination)
	}
	return row.toFile()
}

// GetAllFiles returns the files of module, or of every module when
// module is empty
func (s *Store) GetAllFiles(ctx context.Context, module string) ([]File, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	q := s.selectFiles().Order("f.destination")
	if module != "" {
		q = q.Where("m.name = ?", module)
	}

	var rows []fileRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, storeErr(err, "failed to list files")
	}

	files := make([]File, 0, len(rows))
	for i := range rows {
		f, err := rows[i].toFile()
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, nil
}

// RemoveFile drops the entry for destination
func (s *Store) RemoveFile(ctx context.Context, destination string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := s.db.NewDelete().Model((*fileRow)(nil)).Where("destination = ?", destination).Exec(ctx); err != nil {
		return storeErr(err, "failed to remove file %s", destination)
	}
	return nil
}

// FileExists reports whether destination is managed
func (s *Store) FileExists(ctx context.Context, destination string) (bool, error) {
	done, err := s.begin()
	if err != nil {
		return false, err
	}
	defer done()

	ok, err := s.db.NewSelect().Model((*fileRow)(nil)).Where("destination = ?", destination).Exists(ctx)
	if err != nil {
		return false, storeErr(err, "failed to check file %s", destination)
	}
	return ok, nil
}

// GetSourceChecksum returns the recorded source path and checksum for
// destination. ok is false unless both are present.
func (s *Store) GetSourceChecksum(ctx context.Context, destination string) (Checksum, bool, error) {
	f, err := s.GetFile(ctx, destination)
	if err != nil || f == nil {
		return Checksum{}, false, err
	}
	if f.Source == "" || f.SourceChecksum == "" {
		return Checksum{}, false, nil
	}
	return Checksum{Path: f.Source, Checksum: f.SourceChecksum}, true, nil
}

// GetDestinationChecksum returns the recorded checksum of destination.
// ok is false when none is recorded.
func (s *Store) GetDestinationChecksum(ctx context.Context, destination string) (Checksum, bool, error) {
	f, err := s.GetFile(ctx, destination)
	if err != nil || f == nil {
		return Checksum{}, false, err
	}
	if f.DestinationChecksum == "" {
		return Checksum{}, false, nil
	}
	return Checksum{Path: f.Destination, Checksum: f.DestinationChecksum}, true, nil
}

// GetAllSourceChecksums returns every recorded source checksum
func (s *Store) GetAllSourceChecksums(ctx context.Context) ([]Checksum, error) {
	return s.checksums(ctx, "source", "source_checksum")
}

// GetAllDestinationChecksums returns every recorded destination checksum
func (s *Store) GetAllDestinationChecksums(ctx context.Context) ([]Checksum, error) {
	return s.checksums(ctx, "destination", "destination_checksum")
}

func (s *Store) checksums(ctx context.Context, pathCol, sumCol string) ([]Checksum, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var rows []fileRow
	err = s.db.NewSelect().
		Model(&rows).
		Where("? IS NOT NULL", bun.Ident(pathCol)).
		Where("? IS NOT NULL", bun.Ident(sumCol)).
		Order("destination").
		Scan(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to list %s checksums", pathCol)
	}

	out := make([]Checksum, 0, len(rows))
	for _, r := range rows {
		c := Checksum{Path: r.Destination, Checksum: strVal(r.DestinationChecksum)}
		if pathCol == "source" {
			c = Checksum{Path: strVal(r.Source), Checksum: strVal(r.SourceChecksum)}
		}
		out = append(out, c)
	}
	return out, nil
}
