package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/internal/hashutil"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.sqlite")
	s, err := Open(context.Background(), path, filesystem.NewOps(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestModules(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.AddModule(ctx, Module{
		Name:     "zsh",
		Location: "/mods/zsh",
		Reason:   types.ReasonManual,
		Depends:  []string{"shell-common"},
	}))
	require.NoError(t, s.AddModule(ctx, Module{Name: "shell-common", Location: "/mods/shell-common", Reason: types.ReasonAutomatic}))

	m, err := s.GetModule(ctx, "zsh")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "/mods/zsh", m.Location)
	assert.Equal(t, types.ReasonManual, m.Reason)
	assert.Equal(t, []string{"shell-common"}, m.Depends)
	assert.NotEmpty(t, m.User)
	assert.False(t, m.Date.IsZero())

	missing, err := s.GetModule(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.GetAllModules(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "shell-common", all[0].Name)
	assert.Nil(t, all[0].Depends)

	t.Run("first_write_wins", func(t *testing.T) {
		require.NoError(t, s.AddModule(ctx, Module{Name: "zsh", Location: "/elsewhere", Reason: types.ReasonAutomatic}))
		m, err := s.GetModule(ctx, "zsh")
		require.NoError(t, err)
		assert.Equal(t, "/mods/zsh", m.Location)
		assert.Equal(t, types.ReasonManual, m.Reason)
	})

	t.Run("automatic_is_promoted_to_manual", func(t *testing.T) {
		require.NoError(t, s.AddModule(ctx, Module{Name: "shell-common", Location: "/elsewhere", Reason: types.ReasonManual}))
		m, err := s.GetModule(ctx, "shell-common")
		require.NoError(t, err)
		assert.Equal(t, types.ReasonManual, m.Reason)
		assert.Equal(t, "/mods/shell-common", m.Location)
	})
}

func TestRemoveModuleCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.AddModule(ctx, Module{Name: "git", Location: "/mods/git", Reason: types.ReasonManual}))
	require.NoError(t, s.AddFile(ctx, File{Module: "git", Source: "/mods/git/gitconfig", Destination: "/home/u/.gitconfig", Operation: types.OperationLink}))
	require.NoError(t, s.AddPackage(ctx, "git", "git"))
	require.NoError(t, s.CacheMessage(ctx, types.Message{Module: "git", Command: types.CommandDeploy, Text: "hi"}))
	task := types.Task{Module: "git", Shell: "true", Phase: types.PhaseRemove, Hook: types.HookPre}
	require.NoError(t, s.AddTask(ctx, uuid.New(), task))

	require.NoError(t, s.RemoveModule(ctx, "git"))

	files, err := s.GetAllFiles(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, files)

	pkgs, err := s.GetModulePackages(ctx, "git")
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	tasks, err := s.GetAllTasks(ctx, types.CommandRemove)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFiles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.AddModule(ctx, Module{Name: "vim", Location: "/mods/vim", Reason: types.ReasonManual}))
	require.NoError(t, s.AddModule(ctx, Module{Name: "nvim", Location: "/mods/nvim", Reason: types.ReasonManual}))

	t.Run("unknown_module", func(t *testing.T) {
		err := s.AddFile(ctx, File{Module: "ghost", Destination: "/x", Operation: types.OperationCreate})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrModuleNotFound))
	})

	require.NoError(t, s.AddFile(ctx, File{
		Module:              "vim",
		Source:              "/mods/vim/vimrc",
		SourceChecksum:      "sha256:aa",
		Destination:         "/home/u/.vimrc",
		DestinationChecksum: "sha256:aa",
		Operation:           types.OperationCopy,
	}))

	f, err := s.GetFile(ctx, "/home/u/.vimrc")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "vim", f.Module)
	assert.Equal(t, types.OperationCopy, f.Operation)

	src, ok, err := s.GetSourceChecksum(ctx, "/home/u/.vimrc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Checksum{Path: "/mods/vim/vimrc", Checksum: "sha256:aa"}, src)

	t.Run("upsert_refreshes_every_field", func(t *testing.T) {
		require.NoError(t, s.AddFile(ctx, File{
			Module:      "nvim",
			Source:      "/mods/nvim/vimrc",
			Destination: "/home/u/.vimrc",
			Operation:   types.OperationLink,
		}))

		f, err := s.GetFile(ctx, "/home/u/.vimrc")
		require.NoError(t, err)
		assert.Equal(t, "nvim", f.Module)
		assert.Equal(t, types.OperationLink, f.Operation)
		assert.Empty(t, f.DestinationChecksum)

		_, ok, err := s.GetSourceChecksum(ctx, "/home/u/.vimrc")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = s.GetDestinationChecksum(ctx, "/home/u/.vimrc")
		require.NoError(t, err)
		assert.False(t, ok)

		files, err := s.GetAllFiles(ctx, "vim")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("bulk_checksums_skip_missing", func(t *testing.T) {
		require.NoError(t, s.AddFile(ctx, File{
			Module:              "vim",
			Destination:         "/home/u/.vim/created",
			DestinationChecksum: "sha256:bb",
			Operation:           types.OperationCreate,
		}))

		dst, err := s.GetAllDestinationChecksums(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Checksum{{Path: "/home/u/.vim/created", Checksum: "sha256:bb"}}, dst)

		srcs, err := s.GetAllSourceChecksums(ctx)
		require.NoError(t, err)
		assert.Empty(t, srcs)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.RemoveFile(ctx, "/home/u/.vimrc"))
		ok, err := s.FileExists(ctx, "/home/u/.vimrc")
		require.NoError(t, err)
		assert.False(t, ok)

		f, err := s.GetFile(ctx, "/home/u/.vimrc")
		require.NoError(t, err)
		assert.Nil(t, f)
	})
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "original")
	require.NoError(t, os.WriteFile(path, []byte("Hello World!"), 0o666))
	require.NoError(t, os.Chmod(path, 0o666))
	before, err := s.ops.Metadata(ctx, path)
	require.NoError(t, err)

	require.NoError(t, s.AddBackup(ctx, path))

	b, err := s.GetBackup(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, BackupRegular, b.Type)
	assert.Equal(t, hashutil.CalculateChecksum([]byte("Hello World!")), b.Checksum)
	assert.Equal(t, os.FileMode(0o666), b.Permissions)

	require.NoError(t, os.Remove(path))
	require.NoError(t, s.RestoreBackup(ctx, path, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", string(data))

	after, err := s.ops.Metadata(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, before.UID, after.UID)
	assert.Equal(t, before.GID, after.GID)

	require.NoError(t, s.RemoveBackup(ctx, path))
	ok, err := s.BackupExists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackupLinkAndDummy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()

	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("/etc/hostname", link))
	require.NoError(t, s.AddBackup(ctx, link))

	t.Run("existing_backup_is_kept", func(t *testing.T) {
		require.NoError(t, os.Remove(link))
		require.NoError(t, os.WriteFile(link, []byte("changed"), 0o644))
		require.NoError(t, s.AddBackup(ctx, link))

		b, err := s.GetBackup(ctx, link)
		require.NoError(t, err)
		assert.Equal(t, BackupLink, b.Type)
		assert.Equal(t, "/etc/hostname", b.LinkSource)
	})

	require.NoError(t, os.Remove(link))
	require.NoError(t, s.RestoreBackup(ctx, link, link))
	dest, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/etc/hostname", dest)

	t.Run("dummy_restores_nothing", func(t *testing.T) {
		target := filepath.Join(dir, "never-existed")
		require.NoError(t, s.AddDummyBackup(ctx, target))

		b, err := s.GetBackup(ctx, target)
		require.NoError(t, err)
		assert.Equal(t, BackupDummy, b.Type)
		assert.Equal(t, 9999, b.UID())

		require.NoError(t, s.RestoreBackup(ctx, target, target))
		assert.NoFileExists(t, target)
	})

	t.Run("missing_backup", func(t *testing.T) {
		err := s.RestoreBackup(ctx, filepath.Join(dir, "x"), filepath.Join(dir, "x"))
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})
}

func TestPackages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, m := range []string{"a", "b"} {
		require.NoError(t, s.AddModule(ctx, Module{Name: m, Reason: types.ReasonManual}))
	}

	require.NoError(t, s.AddPackage(ctx, "a", "ripgrep"))
	require.NoError(t, s.AddPackage(ctx, "a", "fd"))
	require.NoError(t, s.AddPackage(ctx, "a", "fd"))
	require.NoError(t, s.AddPackage(ctx, "b", "fd"))

	pkgs, err := s.GetModulePackages(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"fd", "ripgrep"}, pkgs)

	others, err := s.GetOtherModulePackages(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"fd"}, others)

	require.NoError(t, s.RemovePackage(ctx, "a", "fd"))
	pkgs, err = s.GetModulePackages(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"ripgrep"}, pkgs)

	others, err = s.GetOtherModulePackages(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"fd"}, others)
}

func TestTasksAndMessages(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.AddModule(ctx, Module{Name: "rust", Reason: types.ReasonManual}))

	update := types.Task{Module: "rust", Shell: "rustup update", Phase: types.PhaseUpdate, Hook: types.HookPost}
	remove := types.Task{Module: "rust", Exec: "rustup", Args: []string{"self", "uninstall"}, Phase: types.PhaseRemove, Hook: types.HookPre}
	updateID, removeID := uuid.New(), uuid.New()

	require.NoError(t, s.AddTask(ctx, updateID, update))
	require.NoError(t, s.AddTask(ctx, removeID, remove))
	require.NoError(t, s.AddTask(ctx, updateID, update))

	ids, err := s.GetTaskUUIDs(ctx, "rust")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{updateID, removeID}, ids)

	tasks, err := s.GetTasks(ctx, "rust", types.CommandUpdate)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, update, tasks[0].Task)

	got, err := s.GetTask(ctx, removeID)
	require.NoError(t, err)
	assert.Equal(t, remove, got.Task)

	require.NoError(t, s.RemoveTask(ctx, removeID))
	got, err = s.GetTask(ctx, removeID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.CacheMessage(ctx, types.Message{Module: "rust", Command: types.CommandUpdate, Text: "updated"}))
	require.NoError(t, s.CacheMessage(ctx, types.Message{Module: "rust", Command: types.CommandRemove, Text: "bye"}))

	msgs, err := s.GetCachedMessages(ctx, "", types.CommandUpdate)
	require.NoError(t, err)
	assert.Equal(t, []types.Message{{Module: "rust", Command: types.CommandUpdate, Text: "updated"}}, msgs)

	require.NoError(t, s.RemoveCachedMessages(ctx, "rust", types.CommandUpdate))
	msgs, err = s.GetCachedMessages(ctx, "rust", types.CommandUpdate)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, s.RemoveCachedMessages(ctx, "rust", ""))
	msgs, err = s.GetCachedMessages(ctx, "rust", types.CommandRemove)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.AddModule(ctx, Module{Name: "many", Reason: types.ReasonManual}))

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.AddFile(ctx, File{
				Module:              "many",
				Destination:         filepath.Join("/home/u", uuid.NewString()),
				DestinationChecksum: "sha256:00",
				Operation:           types.OperationCreate,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	files, err := s.GetAllFiles(ctx, "many")
	require.NoError(t, err)
	assert.Len(t, files, 40)
}

func TestCloseAndCompact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.sqlite")

	s, err := Open(ctx, path, filesystem.NewOps(nil))
	require.NoError(t, err)
	require.NoError(t, s.AddModule(ctx, Module{Name: "m", Reason: types.ReasonManual}))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	_, err = s.GetModule(ctx, "m")
	assert.True(t, errors.IsErrorCode(err, errors.ErrStore))

	require.NoError(t, Compact(ctx, path))
	assert.NoFileExists(t, path+"-wal")
	assert.NoFileExists(t, path+"-shm")

	s, err = Open(ctx, path, filesystem.NewOps(nil))
	require.NoError(t, err)
	defer func() { _ = s.Close(ctx) }()
	m, err := s.GetModule(ctx, "m")
	require.NoError(t, err)
	assert.NotNil(t, m)
}
