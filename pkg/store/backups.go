package store

import (
	"context"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/internal/hashutil"
)

// BackupType is what a backup holds
type BackupType string

const (
	BackupLink    BackupType = "link"
	BackupRegular BackupType = "regular"
	// BackupDummy records that nothing existed at the path
	BackupDummy BackupType = "dummy"
)

// dummyOwner marks placeholder backups
const dummyOwner = "9999:9999"

// Backup is the saved state of a path before dotdeploy first touched it
type Backup struct {
	Path        string
	Type        BackupType
	Content     []byte
	LinkSource  string
	Owner       string
	Permissions fs.FileMode
	Checksum    string
	Date        time.Time
}

// UID returns the numeric owner
func (b *Backup) UID() int {
	uid, _ := parseOwner(b.Owner)
	return uid
}

// GID returns the numeric group
func (b *Backup) GID() int {
	_, gid := parseOwner(b.Owner)
	return gid
}

func parseOwner(owner string) (int, int) {
	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok {
		return -1, -1
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		uid = -1
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		gid = -1
	}
	return uid, gid
}

func (r *backupRow) toBackup() *Backup {
	b := &Backup{
		Path:       r.Path,
		Type:       BackupType(r.FileType),
		Content:    r.Content,
		LinkSource: strVal(r.LinkSource),
		Owner:      r.Owner,
		Checksum:   strVal(r.Checksum),
		Date:       r.Date,
	}
	if r.Permissions != nil {
		b.Permissions = fs.FileMode(*r.Permissions).Perm()
	}
	return b
}

func (s *Store) insertBackup(ctx context.Context, row *backupRow) error {
	if row.Date.IsZero() {
		row.Date = time.Now()
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (path) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return storeErr(err, "failed to add backup of %s", row.Path)
	}
	return nil
}

// AddBackup saves the symlink or regular file at path. An existing
// backup for path is kept.
func (s *Store) AddBackup(ctx context.Context, path string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	meta, err := s.ops.Metadata(ctx, path)
	if err != nil {
		return err
	}

	perm := int64(meta.Mode)
	row := &backupRow{
		Path:        path,
		Owner:       meta.Owner(),
		Permissions: &perm,
	}

	switch meta.Type {
	case filesystem.FileTypeLink:
		source, err := s.ops.Readlink(ctx, path)
		if err != nil {
			return err
		}
		row.FileType = string(BackupLink)
		row.LinkSource = &source
	case filesystem.FileTypeRegular:
		content, err := s.ops.ReadFile(ctx, path)
		if err != nil {
			return err
		}
		sum := hashutil.CalculateChecksum(content)
		row.FileType = string(BackupRegular)
		row.Content = content
		row.Checksum = &sum
	default:
		return errors.Newf(errors.ErrFilesystem, "cannot back up %s: %s", path, meta.Type).
			WithDetail("path", path)
	}

	if err := s.insertBackup(ctx, row); err != nil {
		return err
	}
	s.logger.Debug().Str("path", path).Str("type", row.FileType).Msg("Backup added")
	return nil
}

// AddDummyBackup records that nothing existed at path
func (s *Store) AddDummyBackup(ctx context.Context, path string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	return s.insertBackup(ctx, &backupRow{
		Path:     path,
		FileType: string(BackupDummy),
		Owner:    dummyOwner,
	})
}

// BackupExists reports whether path has a backup
func (s *Store) BackupExists(ctx context.Context, path string) (bool, error) {
	done, err := s.begin()
	if err != nil {
		return false, err
	}
	defer done()

	ok, err := s.db.NewSelect().Model((*backupRow)(nil)).Where("path = ?", path).Exists(ctx)
	if err != nil {
		return false, storeErr(err, "failed to check backup of %s", path)
	}
	return ok, nil
}

// GetBackup returns the backup of path or nil
func (s *Store) GetBackup(ctx context.Context, path string) (*Backup, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var row backupRow
	err = s.db.NewSelect().Model(&row).Where("path = ?", path).Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "failed to get backup of %s", path)
	}
	return row.toBackup(), nil
}

// RemoveBackup drops the backup of path
func (s *Store) RemoveBackup(ctx context.Context, path string) error {
	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	if _, err := s.db.NewDelete().Model((*backupRow)(nil)).Where("path = ?", path).Exec(ctx); err != nil {
		return storeErr(err, "failed to remove backup of %s", path)
	}
	return nil
}

// RestoreBackup recreates the backed up state of target at to. Owner
// and permissions are reapplied and regular content is verified against
// the recorded checksum. Dummy backups restore nothing.
func (s *Store) RestoreBackup(ctx context.Context, target, to string) error {
	b, err := s.GetBackup(ctx, target)
	if err != nil {
		return err
	}
	if b == nil {
		return errors.Newf(errors.ErrNotFound, "no backup of %s", target).WithDetail("path", target)
	}

	done, err := s.begin()
	if err != nil {
		return err
	}
	defer done()

	switch b.Type {
	case BackupDummy:
		return nil

	case BackupLink:
		if err := s.ops.Symlink(ctx, b.LinkSource, to); err != nil {
			return err
		}
		return s.ops.ChownIDs(ctx, to, b.UID(), b.GID())

	case BackupRegular:
		if err := s.ops.WriteFile(ctx, to, b.Content, b.Permissions); err != nil {
			return err
		}
		if err := s.ops.ChownIDs(ctx, to, b.UID(), b.GID()); err != nil {
			return err
		}
		if err := s.ops.Chmod(ctx, to, b.Permissions); err != nil {
			return err
		}
		if b.Checksum == "" {
			return nil
		}
		sum, err := s.ops.Checksum(ctx, to)
		if err != nil {
			return err
		}
		if sum != b.Checksum {
			return errors.Newf(errors.ErrChecksumDrift, "restored %s does not match its backup", to).
				WithDetails(map[string]interface{}{"expected": b.Checksum, "actual": sum})
		}
		s.logger.Debug().Str("path", to).Msg("Backup restored")
		return nil

	default:
		return errors.Newf(errors.ErrStore, "unknown backup type %q for %s", b.Type, target)
	}
}
