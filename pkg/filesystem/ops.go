package filesystem

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/arthur-debert/dotdeploy/pkg/elevate"
	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/internal/hashutil"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/rs/zerolog"
)

// DirPerm is the mode of directories created for targets
const DirPerm fs.FileMode = 0o755

// FileType distinguishes the kinds of paths Ops reports on
type FileType string

const (
	FileTypeRegular FileType = "regular"
	FileTypeLink    FileType = "link"
	FileTypeDir     FileType = "directory"
	FileTypeOther   FileType = "other"
)

// Metadata is the ownership and mode of a path, without following links
type Metadata struct {
	Type FileType
	// Mode holds permission bits only
	Mode fs.FileMode
	UID  int
	GID  int
}

// Owner formats uid:gid as stored in backups
func (m Metadata) Owner() string {
	return fmt.Sprintf("%d:%d", m.UID, m.GID)
}

// ConfirmFunc asks whether a path may be removed
type ConfirmFunc func(path string) bool

// Ops performs deployment filesystem calls with elevation fallback
type Ops struct {
	elevator elevate.Runner
	logger   zerolog.Logger
	// stopAt directories are never removed by DeleteParents
	stopAt map[string]bool
}

// NewOps creates Ops; a nil elevator disables the fallback
func NewOps(elevator elevate.Runner) *Ops {
	stopAt := map[string]bool{"/": true}
	if home, err := os.UserHomeDir(); err == nil {
		stopAt[filepath.Clean(home)] = true
	}
	return &Ops{
		elevator: elevator,
		logger:   logging.GetLogger("filesystem"),
		stopAt:   stopAt,
	}
}

// IsPermission reports whether err is a permission-denied error
func IsPermission(err error) bool {
	return stderrors.Is(err, fs.ErrPermission)
}

func (o *Ops) elevated(ctx context.Context, cause error, reason, cmd string, args ...string) (*elevate.Result, error) {
	if o.elevator == nil {
		return nil, errors.Wrapf(cause, errors.ErrPermission, "permission denied trying to %s", reason)
	}
	o.logger.Debug().Str("command", cmd).Strs("args", args).Str("reason", reason).Msg("Retrying with elevated privileges")
	return o.elevator.Run(ctx, cmd, args, reason)
}

func fsError(err error, op, path string) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, errors.ErrFileNotFound, "%s %s", op, path).WithDetail("path", path)
	}
	return errors.Wrapf(err, errors.ErrFilesystem, "%s %s", op, path).WithDetail("path", path)
}

// Exists reports whether path exists; a dangling symlink exists
func (o *Ops) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	case IsPermission(err):
		res, rerr := o.elevated(ctx, err, "check existence of "+path, "test", "-e", path, "-o", "-L", path)
		if res != nil && res.ExitCode == 1 {
			return false, nil
		}
		if rerr != nil {
			return false, rerr
		}
		return true, nil
	default:
		return false, fsError(err, "stat", path)
	}
}

// IsSymlink reports whether path is a symbolic link
func (o *Ops) IsSymlink(ctx context.Context, path string) (bool, error) {
	info, err := os.Lstat(path)
	switch {
	case err == nil:
		return info.Mode()&fs.ModeSymlink != 0, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	case IsPermission(err):
		res, rerr := o.elevated(ctx, err, "inspect "+path, "test", "-L", path)
		if res != nil && res.ExitCode == 1 {
			return false, nil
		}
		if rerr != nil {
			return false, rerr
		}
		return true, nil
	default:
		return false, fsError(err, "lstat", path)
	}
}

// Readlink returns the target of a symlink
func (o *Ops) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(path)
	if err == nil {
		return target, nil
	}
	if !IsPermission(err) {
		return "", fsError(err, "readlink", path)
	}
	res, err := o.elevated(ctx, err, "read link "+path, "readlink", path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(res.Stdout, "\n"), nil
}

// ReadFile returns the content of path
func (o *Ops) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !IsPermission(err) {
		return nil, fsError(err, "read", path)
	}
	res, err := o.elevated(ctx, err, "read "+path, "cat", path)
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// Checksum returns the sha256 checksum of path's content
func (o *Ops) Checksum(ctx context.Context, path string) (string, error) {
	sum, err := hashutil.CalculateFileChecksum(path)
	if err == nil {
		return sum, nil
	}
	if !IsPermission(err) {
		return "", fsError(err, "checksum", path)
	}
	res, err := o.elevated(ctx, err, "checksum "+path, "sha256sum", path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) == 0 {
		return "", errors.Newf(errors.ErrFilesystem, "unexpected sha256sum output for %s", path)
	}
	return hashutil.FromHex(fields[0]), nil
}

// Delete removes a file or symlink. A missing path is not an error.
func (o *Ops) Delete(ctx context.Context, path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		o.logger.Debug().Str("path", path).Msg("Deleted")
		return nil
	case stderrors.Is(err, fs.ErrNotExist):
		o.logger.Debug().Str("path", path).Msg("Already absent")
		return nil
	case IsPermission(err):
		_, err = o.elevated(ctx, err, "delete "+path, "rm", "-f", path)
		return err
	default:
		return fsError(err, "delete", path)
	}
}

// MkdirAll creates path and its parents
func (o *Ops) MkdirAll(ctx context.Context, path string) error {
	err := os.MkdirAll(path, DirPerm)
	if err == nil {
		return nil
	}
	if !IsPermission(err) {
		return fsError(err, "mkdir", path)
	}
	_, err = o.elevated(ctx, err, "create directory "+path, "mkdir", "-p", path)
	return err
}

// Symlink points target at source, replacing whatever target was
func (o *Ops) Symlink(ctx context.Context, source, target string) error {
	if err := o.MkdirAll(ctx, filepath.Dir(target)); err != nil {
		return err
	}
	if err := o.Delete(ctx, target); err != nil {
		return err
	}
	err := os.Symlink(source, target)
	if err == nil {
		return nil
	}
	if !IsPermission(err) {
		return fsError(err, "symlink", target)
	}
	_, err = o.elevated(ctx, err, "link "+target, "ln", "-sf", source, target)
	return err
}

// WriteFile writes data to path. An existing symlink at path is replaced,
// never written through.
func (o *Ops) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	if err := o.MkdirAll(ctx, filepath.Dir(path)); err != nil {
		return err
	}
	if link, err := o.IsSymlink(ctx, path); err != nil {
		return err
	} else if link {
		if err := o.Delete(ctx, path); err != nil {
			return err
		}
	}

	err := os.WriteFile(path, data, perm)
	if err == nil {
		return nil
	}
	if !IsPermission(err) {
		return fsError(err, "write", path)
	}

	// Stage in a scratch file, then let the elevated cp put it in place
	tmp, terr := os.CreateTemp("", "dotdeploy-*")
	if terr != nil {
		return fsError(terr, "create scratch file for", path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, terr = tmp.Write(data); terr != nil {
		_ = tmp.Close()
		return fsError(terr, "write scratch file for", path)
	}
	if terr = tmp.Close(); terr != nil {
		return fsError(terr, "close scratch file for", path)
	}

	if _, err = o.elevated(ctx, err, "write "+path, "cp", tmp.Name(), path); err != nil {
		return err
	}
	return o.Chmod(ctx, path, perm)
}

// Copy copies the content of source to target
func (o *Ops) Copy(ctx context.Context, source, target string) error {
	data, err := o.ReadFile(ctx, source)
	if err != nil {
		return err
	}
	perm := fs.FileMode(0o644)
	if meta, err := o.Metadata(ctx, source); err == nil {
		perm = meta.Mode
	}
	return o.WriteFile(ctx, target, data, perm)
}

// Chmod sets permission bits on path
func (o *Ops) Chmod(ctx context.Context, path string, perm fs.FileMode) error {
	err := os.Chmod(path, perm)
	if err == nil {
		return nil
	}
	if !IsPermission(err) {
		return fsError(err, "chmod", path)
	}
	_, err = o.elevated(ctx, err, "change mode of "+path, "chmod", fmt.Sprintf("%o", perm.Perm()), path)
	return err
}

// Chown sets owner and group by name; empty values are left unchanged
func (o *Ops) Chown(ctx context.Context, path, owner, group string) error {
	if owner == "" && group == "" {
		return nil
	}

	uid, gid, err := LookupIDs(owner, group)
	if err != nil {
		return err
	}
	return o.ChownIDs(ctx, path, uid, gid)
}

// LookupIDs resolves user and group names; an empty name resolves to -1
func LookupIDs(owner, group string) (uid, gid int, err error) {
	uid, gid = -1, -1
	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return uid, gid, errors.Wrapf(err, errors.ErrInvalidInput, "unknown user %q", owner)
		}
		uid, _ = strconv.Atoi(u.Uid)
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return uid, gid, errors.Wrapf(err, errors.ErrInvalidInput, "unknown group %q", group)
		}
		gid, _ = strconv.Atoi(g.Gid)
	}
	return uid, gid, nil
}

// ChownIDs sets numeric owner and group; -1 leaves a value unchanged
func (o *Ops) ChownIDs(ctx context.Context, path string, uid, gid int) error {
	err := os.Lchown(path, uid, gid)
	if err == nil {
		return nil
	}
	if !IsPermission(err) {
		return fsError(err, "chown", path)
	}

	spec := ""
	if uid >= 0 {
		spec = strconv.Itoa(uid)
	}
	if gid >= 0 {
		spec += ":" + strconv.Itoa(gid)
	}
	_, err = o.elevated(ctx, err, "change owner of "+path, "chown", "-h", spec, path)
	return err
}

// Metadata returns type, mode and ownership of path without following links
func (o *Ops) Metadata(ctx context.Context, path string) (*Metadata, error) {
	info, err := os.Lstat(path)
	if err == nil {
		meta := &Metadata{Type: fileType(info.Mode()), Mode: info.Mode().Perm(), UID: -1, GID: -1}
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			meta.UID = int(st.Uid)
			meta.GID = int(st.Gid)
		}
		return meta, nil
	}
	if !IsPermission(err) {
		return nil, fsError(err, "stat", path)
	}

	res, err := o.elevated(ctx, err, "inspect "+path, "stat", "-c", "%a %u %g %F", path)
	if err != nil {
		return nil, err
	}
	return parseStat(res.Stdout, path)
}

func parseStat(out, path string) (*Metadata, error) {
	fields := strings.SplitN(strings.TrimSpace(out), " ", 4)
	if len(fields) != 4 {
		return nil, errors.Newf(errors.ErrFilesystem, "unexpected stat output for %s: %q", path, out)
	}
	mode, err := strconv.ParseUint(fields[0], 8, 32)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "unexpected mode for %s", path)
	}
	uid, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "unexpected uid for %s", path)
	}
	gid, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFilesystem, "unexpected gid for %s", path)
	}

	meta := &Metadata{Mode: fs.FileMode(mode).Perm(), UID: uid, GID: gid}
	switch kind := fields[3]; {
	case kind == "symbolic link":
		meta.Type = FileTypeLink
	case kind == "directory":
		meta.Type = FileTypeDir
	case strings.HasPrefix(kind, "regular"):
		meta.Type = FileTypeRegular
	default:
		meta.Type = FileTypeOther
	}
	return meta, nil
}

func fileType(mode fs.FileMode) FileType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return FileTypeLink
	case mode.IsDir():
		return FileTypeDir
	case mode.IsRegular():
		return FileTypeRegular
	default:
		return FileTypeOther
	}
}

// DeleteParents removes the empty ancestors of path, nearest first.
// It stops at the first non-empty directory, at / and at the home
// directory, or when confirm declines. A nil confirm approves everything.
func (o *Ops) DeleteParents(ctx context.Context, path string, confirm ConfirmFunc) error {
	dir := filepath.Dir(filepath.Clean(path))
	for !o.stopAt[dir] {
		empty, err := o.isEmptyDir(ctx, dir)
		if err != nil {
			return err
		}
		if !empty {
			return nil
		}
		if confirm != nil && !confirm(dir) {
			return nil
		}

		err = os.Remove(dir)
		switch {
		case err == nil, stderrors.Is(err, fs.ErrNotExist):
		case IsPermission(err):
			if _, err := o.elevated(ctx, err, "remove empty directory "+dir, "rmdir", dir); err != nil {
				return err
			}
		default:
			return fsError(err, "remove directory", dir)
		}
		o.logger.Debug().Str("dir", dir).Msg("Removed empty parent directory")

		dir = filepath.Dir(dir)
	}
	return nil
}

func (o *Ops) isEmptyDir(ctx context.Context, dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	switch {
	case err == nil:
		return len(entries) == 0, nil
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	case IsPermission(err):
		res, err := o.elevated(ctx, err, "list "+dir, "ls", "-A", dir)
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(res.Stdout) == "", nil
	default:
		return false, fsError(err, "read directory", dir)
	}
}
