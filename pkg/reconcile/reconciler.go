package reconcile

import (
	"context"
	"io/fs"
	"os/user"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/internal/hashutil"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/modules"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// defaultPerm is the mode of created files without declared permissions
const defaultPerm fs.FileMode = 0o644

// Store is the part of the store the reconciler reads and writes
type Store interface {
	GetFile(ctx context.Context, destination string) (*store.File, error)
	AddFile(ctx context.Context, f store.File) error
	RemoveFile(ctx context.Context, destination string) error
	AddBackup(ctx context.Context, path string) error
	AddDummyBackup(ctx context.Context, path string) error
	BackupExists(ctx context.Context, path string) (bool, error)
	RestoreBackup(ctx context.Context, target, to string) error
	RemoveBackup(ctx context.Context, path string) error
}

// Reconciler deploys and removes managed files
type Reconciler struct {
	store    Store
	ops      *filesystem.Ops
	renderer render.Renderer
	logger   zerolog.Logger
}

// New returns a Reconciler
func New(st Store, ops *filesystem.Ops, renderer render.Renderer) *Reconciler {
	return &Reconciler{
		store:    st,
		ops:      ops,
		renderer: renderer,
		logger:   logging.GetLogger("reconcile"),
	}
}

// State classifies f without mutating anything
func (r *Reconciler) State(ctx context.Context, f types.PhaseFile) (State, error) {
	entry, err := r.store.GetFile(ctx, f.Target)
	if err != nil {
		return NotDeployed, err
	}
	return r.state(ctx, f, entry)
}

func (r *Reconciler) state(ctx context.Context, f types.PhaseFile, entry *store.File) (State, error) {
	if entry != nil && entry.Operation != f.Operation {
		return OperationChanged, nil
	}

	switch f.Operation {
	case types.OperationCopy:
		if entry == nil {
			return NotDeployed, nil
		}
		srcSum, err := r.ops.Checksum(ctx, f.Source)
		if err != nil {
			return NotDeployed, err
		}
		dstSum, err := r.liveChecksum(ctx, f.Target)
		if err != nil {
			return NotDeployed, err
		}
		if srcSum != entry.SourceChecksum || dstSum != entry.DestinationChecksum {
			return Stale, nil
		}
		if f.Template {
			data, err := r.ops.ReadFile(ctx, f.Source)
			if err != nil {
				return NotDeployed, err
			}
			if data, err = r.render(string(data), f); err != nil {
				return NotDeployed, err
			}
			if hashutil.CalculateChecksum(data) != dstSum {
				return Stale, nil
			}
		}
		return r.attributesState(ctx, f)

	case types.OperationLink:
		if entry == nil {
			return NotDeployed, nil
		}
		ok, err := r.linksTo(ctx, f.Target, f.Source)
		if err != nil {
			return NotDeployed, err
		}
		if ok {
			return UpToDate, nil
		}
		return Stale, nil

	case types.OperationCreate:
		if entry == nil {
			return NotDeployed, nil
		}
		content, err := r.createContent(f)
		if err != nil {
			return NotDeployed, err
		}
		dstSum, err := r.liveChecksum(ctx, f.Target)
		if err != nil {
			return NotDeployed, err
		}
		want := hashutil.CalculateChecksum(content)
		if want != entry.DestinationChecksum || want != dstSum {
			return Stale, nil
		}
		return r.attributesState(ctx, f)

	default:
		return NotDeployed, errors.Newf(errors.ErrInvalidInput, "cannot reconcile %s with operation %s", f.Target, f.Operation)
	}
}

// attributesState compares the declared permissions, owner and group of
// f with the live target
func (r *Reconciler) attributesState(ctx context.Context, f types.PhaseFile) (State, error) {
	if f.Permissions == "" && f.Owner == "" && f.Group == "" {
		return UpToDate, nil
	}
	meta, err := r.ops.Metadata(ctx, f.Target)
	if err != nil {
		return NotDeployed, err
	}
	if f.Permissions != "" {
		mode, err := modules.ParsePermissions(f.Permissions)
		if err != nil {
			return NotDeployed, err
		}
		if meta.Mode.Perm() != fs.FileMode(mode).Perm() {
			return Stale, nil
		}
	}
	uid, gid, err := filesystem.LookupIDs(f.Owner, f.Group)
	if err != nil {
		return NotDeployed, err
	}
	if (uid >= 0 && meta.UID != uid) || (gid >= 0 && meta.GID != gid) {
		return Stale, nil
	}
	return UpToDate, nil
}

// liveChecksum returns the checksum of path, empty when it does not exist
func (r *Reconciler) liveChecksum(ctx context.Context, path string) (string, error) {
	exists, err := r.ops.Exists(ctx, path)
	if err != nil || !exists {
		return "", err
	}
	if link, err := r.ops.IsSymlink(ctx, path); err != nil || link {
		return "", err
	}
	return r.ops.Checksum(ctx, path)
}

func (r *Reconciler) linksTo(ctx context.Context, target, source string) (bool, error) {
	link, err := r.ops.IsSymlink(ctx, target)
	if err != nil || !link {
		return false, err
	}
	dest, err := r.ops.Readlink(ctx, target)
	if err != nil {
		return false, err
	}
	return dest == source, nil
}

// Deploy reconciles one file
func (r *Reconciler) Deploy(ctx context.Context, f types.PhaseFile) (Result, error) {
	res := Result{Target: f.Target}

	entry, err := r.store.GetFile(ctx, f.Target)
	if err != nil {
		return res, err
	}
	state, err := r.state(ctx, f, entry)
	if err != nil {
		return res, errors.Wrapf(err, errors.GetErrorCode(err), "failed to assess %s", f.Target).
			WithDetail("module", f.Module)
	}
	res.State = state

	switch state {
	case UpToDate:
		r.logger.Debug().Str("target", f.Target).Msg("Up to date")
		return res, nil
	case OperationChanged:
		r.logger.Info().
			Str("target", f.Target).
			Str("from", entry.Operation.String()).
			Str("to", f.Operation.String()).
			Msg("Operation changed, undeploying first")
		if err := r.Remove(ctx, *entry); err != nil {
			return res, err
		}
	}

	if err := r.backup(ctx, f.Target); err != nil {
		return res, err
	}

	var deployErr error
	switch f.Operation {
	case types.OperationCopy:
		deployErr = r.deployCopy(ctx, f)
	case types.OperationLink:
		deployErr = r.deployLink(ctx, f)
	case types.OperationCreate:
		deployErr = r.deployCreate(ctx, f)
	}
	if deployErr != nil {
		return res, errors.Wrapf(deployErr, errors.GetErrorCode(deployErr), "failed to deploy %s", f.Target).
			WithDetail("module", f.Module)
	}

	res.Changed = true
	r.logger.Info().
		Str("module", f.Module).
		Str("target", f.Target).
		Str("operation", f.Operation.String()).
		Str("state", state.String()).
		Msg("Deployed")
	return res, nil
}

// DeployAll deploys files concurrently. Every file is attempted; failures
// are aggregated.
func (r *Reconciler) DeployAll(ctx context.Context, files []types.PhaseFile, limit int) ([]Result, error) {
	return batch.Map(ctx, files, limit, r.Deploy)
}

// backup records what occupies target unless a backup already exists
func (r *Reconciler) backup(ctx context.Context, target string) error {
	has, err := r.store.BackupExists(ctx, target)
	if err != nil || has {
		return err
	}
	exists, err := r.ops.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return r.store.AddDummyBackup(ctx, target)
	}
	r.logger.Debug().Str("target", target).Msg("Backing up existing file")
	return r.store.AddBackup(ctx, target)
}

func (r *Reconciler) deployCopy(ctx context.Context, f types.PhaseFile) error {
	if err := r.copyContent(ctx, f); err != nil {
		return err
	}
	if err := r.applyAttributes(ctx, f); err != nil {
		return err
	}

	srcSum, err := r.ops.Checksum(ctx, f.Source)
	if err != nil {
		return err
	}
	dstSum, err := r.ops.Checksum(ctx, f.Target)
	if err != nil {
		return err
	}
	return r.store.AddFile(ctx, store.File{
		Module:              f.Module,
		Source:              f.Source,
		SourceChecksum:      srcSum,
		Destination:         f.Target,
		DestinationChecksum: dstSum,
		Operation:           types.OperationCopy,
	})
}

// copyContent writes the source of f to its target, rendered when f is
// a template, keeping the source mode
func (r *Reconciler) copyContent(ctx context.Context, f types.PhaseFile) error {
	if !f.Template {
		return r.ops.Copy(ctx, f.Source, f.Target)
	}
	data, err := r.ops.ReadFile(ctx, f.Source)
	if err != nil {
		return err
	}
	if data, err = r.render(string(data), f); err != nil {
		return err
	}
	perm := defaultPerm
	if meta, err := r.ops.Metadata(ctx, f.Source); err == nil {
		perm = meta.Mode
	}
	return r.ops.WriteFile(ctx, f.Target, data, perm)
}

func (r *Reconciler) deployLink(ctx context.Context, f types.PhaseFile) error {
	if err := r.ops.Symlink(ctx, f.Source, f.Target); err != nil {
		return err
	}
	if err := r.applyOwner(ctx, f); err != nil {
		return err
	}
	return r.store.AddFile(ctx, store.File{
		Module:      f.Module,
		Source:      f.Source,
		Destination: f.Target,
		Operation:   types.OperationLink,
	})
}

func (r *Reconciler) deployCreate(ctx context.Context, f types.PhaseFile) error {
	content, err := r.createContent(f)
	if err != nil {
		return err
	}
	if err := r.ops.WriteFile(ctx, f.Target, content, defaultPerm); err != nil {
		return err
	}
	if err := r.applyAttributes(ctx, f); err != nil {
		return err
	}
	dstSum, err := r.ops.Checksum(ctx, f.Target)
	if err != nil {
		return err
	}
	return r.store.AddFile(ctx, store.File{
		Module:              f.Module,
		Destination:         f.Target,
		DestinationChecksum: dstSum,
		Operation:           types.OperationCreate,
	})
}

func (r *Reconciler) createContent(f types.PhaseFile) ([]byte, error) {
	if !f.Template {
		return []byte(f.Content), nil
	}
	return r.render(f.Content, f)
}

func (r *Reconciler) render(text string, f types.PhaseFile) ([]byte, error) {
	out, err := r.renderer.Render(text, render.Context(f.Vars))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (r *Reconciler) applyAttributes(ctx context.Context, f types.PhaseFile) error {
	if err := r.applyOwner(ctx, f); err != nil {
		return err
	}
	if f.Permissions == "" {
		return nil
	}
	mode, err := modules.ParsePermissions(f.Permissions)
	if err != nil {
		return err
	}
	return r.ops.Chmod(ctx, f.Target, fs.FileMode(mode))
}

func (r *Reconciler) applyOwner(ctx context.Context, f types.PhaseFile) error {
	if f.Owner == "" && f.Group == "" {
		return nil
	}
	owner, group := f.Owner, f.Group
	if owner == "" {
		if u, err := user.Current(); err == nil {
			owner = u.Username
		}
	}
	return r.ops.Chown(ctx, f.Target, owner, group)
}

// Remove undeploys a stored file: the target is deleted, its backup
// restored and dropped, and the entry removed
func (r *Reconciler) Remove(ctx context.Context, f store.File) error {
	if err := r.ops.Delete(ctx, f.Destination); err != nil {
		return err
	}

	has, err := r.store.BackupExists(ctx, f.Destination)
	if err != nil {
		return err
	}
	if has {
		if err := r.store.RestoreBackup(ctx, f.Destination, f.Destination); err != nil {
			return err
		}
		if err := r.store.RemoveBackup(ctx, f.Destination); err != nil {
			return err
		}
	}

	if err := r.store.RemoveFile(ctx, f.Destination); err != nil {
		return err
	}
	r.logger.Info().Str("target", f.Destination).Bool("restored", has).Msg("Removed")
	return nil
}

// Drifted reports whether the live content of a stored file no longer
// matches what was recorded when it was deployed. Links and files that
// no longer exist never drift.
func (r *Reconciler) Drifted(ctx context.Context, f store.File) (bool, error) {
	if f.Operation == types.OperationLink || f.DestinationChecksum == "" {
		return false, nil
	}
	sum, err := r.liveChecksum(ctx, f.Destination)
	if err != nil {
		return false, err
	}
	return sum != "" && sum != f.DestinationChecksum, nil
}
