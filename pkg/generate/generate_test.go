package generate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

func setup(t *testing.T) (string, *store.Store, *Generator) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	ops := filesystem.NewOps(nil)
	st, err := store.Open(ctx, filepath.Join(dir, "store.sqlite"), ops)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	for _, name := range []string{"zsh", "git", "empty"} {
		loc := filepath.Join(dir, "modules", name)
		require.NoError(t, os.MkdirAll(loc, 0o755))
		require.NoError(t, st.AddModule(ctx, store.Module{Name: name, Location: loc, Reason: types.ReasonManual}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modules/zsh/aliases"), []byte("alias z=zsh # {{ .DOD_HOSTNAME }}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "modules/git/aliases"), []byte("alias g=git\n"), 0o644))

	gen := New(st, ops, filesystem.NewOS(), render.New(), filepath.Join(dir, "modules"))
	return dir, st, gen
}

func TestGenerateConcatenatesSnippets(t *testing.T) {
	ctx := context.Background()
	dir, st, gen := setup(t)
	target := filepath.Join(dir, "home/.aliases")

	err := gen.Generate(ctx, []types.Generator{{
		Module:  "zsh",
		Target:  target,
		Source:  "aliases",
		Prepend: "# generated for {{ .DOD_HOSTNAME }}\n",
		Append:  "# end\n",
	}}, render.Context{render.KeyHostname: "box"}, 2)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "# generated for box\nalias g=git\nalias z=zsh # box\n# end\n", string(data))

	files, err := st.GetAllFiles(ctx, types.GeneratedModule)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, types.OperationGenerate, files[0].Operation)
	assert.NotEmpty(t, files[0].DestinationChecksum)

	m, err := st.GetModule(ctx, types.GeneratedModule)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, types.ReasonAutomatic, m.Reason)
}

func TestGenerateDropsUndeclaredTargets(t *testing.T) {
	ctx := context.Background()
	dir, st, gen := setup(t)
	old := filepath.Join(dir, "home/.old")
	rctx := render.Context{render.KeyHostname: "box"}

	require.NoError(t, gen.Generate(ctx, []types.Generator{{Module: "git", Target: old, Source: "aliases"}}, rctx, 1))
	_, err := os.Stat(old)
	require.NoError(t, err)

	require.NoError(t, gen.Generate(ctx, nil, rctx, 1))
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))

	files, err := st.GetAllFiles(ctx, types.GeneratedModule)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGenerateSkipsEmptyContent(t *testing.T) {
	ctx := context.Background()
	dir, st, gen := setup(t)
	target := filepath.Join(dir, "home/.none")

	require.NoError(t, gen.Generate(ctx, []types.Generator{{Module: "git", Target: target, Source: "missing-snippet"}}, render.Context{}, 1))
	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	ok, err := st.FileExists(ctx, target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateLeavesUnchangedTarget(t *testing.T) {
	ctx := context.Background()
	dir, st, gen := setup(t)
	target := filepath.Join(dir, "home/.aliases")
	gens := []types.Generator{{Module: "git", Target: target, Source: "aliases"}}
	rctx := render.Context{render.KeyHostname: "box"}

	require.NoError(t, gen.Generate(ctx, gens, rctx, 1))
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(target, past, past))
	before, err := st.GetFile(ctx, target)
	require.NoError(t, err)
	require.NotNil(t, before)

	require.NoError(t, gen.Generate(ctx, gens, rctx, 1))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))
	after, err := st.GetFile(ctx, target)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, before.Date.Equal(after.Date))
}

func TestGenerateRewritesModifiedTarget(t *testing.T) {
	ctx := context.Background()
	dir, _, gen := setup(t)
	target := filepath.Join(dir, "home/.aliases")
	gens := []types.Generator{{Module: "git", Target: target, Source: "aliases"}}

	require.NoError(t, gen.Generate(ctx, gens, render.Context{}, 1))
	require.NoError(t, os.WriteFile(target, []byte("edited\n"), 0o644))

	require.NoError(t, gen.Generate(ctx, gens, render.Context{}, 1))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alias g=git")
}

func TestGenerateRestoresReplacedFile(t *testing.T) {
	ctx := context.Background()
	dir, st, gen := setup(t)
	target := filepath.Join(dir, "home/.aliases")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("alias ll='ls -l'\n"), 0o600))

	require.NoError(t, gen.Generate(ctx, []types.Generator{{Module: "git", Target: target, Source: "aliases"}}, render.Context{}, 1))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "alias g=git\n", string(data))
	ok, err := st.BackupExists(ctx, target)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, gen.Generate(ctx, nil, render.Context{}, 1))
	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "alias ll='ls -l'\n", string(data))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ok, err = st.BackupExists(ctx, target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateEmptyContentKeepsForeignFile(t *testing.T) {
	ctx := context.Background()
	dir, _, gen := setup(t)
	target := filepath.Join(dir, "home/.none")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("mine\n"), 0o644))

	require.NoError(t, gen.Generate(ctx, []types.Generator{{Module: "git", Target: target, Source: "missing-snippet"}}, render.Context{}, 1))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "mine\n", string(data))
}
