package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
	"github.com/arthur-debert/dotdeploy/pkg/ui"
)

type recordingTasks struct {
	mu   sync.Mutex
	ran  []string
	fail string
}

func (r *recordingTasks) Run(_ context.Context, t types.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Shell == r.fail {
		return errors.Newf(errors.ErrTaskFailed, "task %q failed", t.Shell)
	}
	r.ran = append(r.ran, t.Module+":"+string(t.Phase)+":"+string(t.Hook)+":"+t.Shell)
	return nil
}

func (r *recordingTasks) RunAll(ctx context.Context, tasks []types.Task) error {
	for _, t := range tasks {
		if err := r.Run(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

type recordingPackages struct {
	installed [][]string
	removed   [][]string
}

func (r *recordingPackages) Install(_ context.Context, pkgs []string) error {
	r.installed = append(r.installed, pkgs)
	return nil
}

func (r *recordingPackages) Remove(_ context.Context, pkgs []string) error {
	r.removed = append(r.removed, pkgs)
	return nil
}

type answer struct {
	reply bool
	asked int
}

func (a *answer) Confirm(string, []string) (bool, error) {
	a.asked++
	return a.reply, nil
}

type fixture struct {
	root    string
	home    string
	modules string
	store   *store.Store
	tasks   *recordingTasks
	pkgs    *recordingPackages
	confirm *answer
	out     *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	fx := &fixture{
		root:    root,
		home:    filepath.Join(root, "home"),
		modules: filepath.Join(root, "dots", "modules"),
		tasks:   &recordingTasks{},
		pkgs:    &recordingPackages{},
		confirm: &answer{},
		out:     &bytes.Buffer{},
	}
	require.NoError(t, os.MkdirAll(fx.home, 0o755))
	require.NoError(t, os.MkdirAll(fx.modules, 0o755))

	st, err := store.Open(context.Background(), filepath.Join(root, "store.sqlite"), filesystem.NewOps(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	fx.store = st
	return fx
}

func (fx *fixture) engine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		ConfigRoot:  filepath.Join(fx.root, "dots"),
		ModulesRoot: fx.modules,
		HostsRoot:   filepath.Join(fx.root, "dots", "hosts"),
		Hostname:    "testhost",
		Home:        fx.home,
		User:        "tester",
		Concurrency: 4,
	}
	if mutate != nil {
		mutate(&opts)
	}
	out, err := ui.NewRenderer(ui.FormatText, fx.out)
	require.NoError(t, err)
	return New(opts, Deps{
		Store:     fx.store,
		FS:        filesystem.NewOS(),
		Ops:       filesystem.NewOps(nil),
		Renderer:  render.New(),
		Tasks:     fx.tasks,
		Packages:  fx.pkgs,
		Output:    out,
		Confirmer: fx.confirm,
	})
}

func (fx *fixture) module(t *testing.T, name, config string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(fx.modules, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0o644))
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644))
	}
	return dir
}

func (fx *fixture) target(name string) string {
	return filepath.Join(fx.home, name)
}

func (fx *fixture) reason(t *testing.T, name string) types.Reason {
	t.Helper()
	m, err := fx.store.GetModule(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, m, name)
	return m.Reason
}

func shellModule(fx *fixture) string {
	return `
[[files]]
source = "zshrc"
target = "` + fx.target(".zshrc") + `"

[[files]]
source = "env"
target = "` + fx.target(".env") + `"
type = "copy"

[[tasks]]
shell = "echo setup"
phase = "setup"
hook = "pre"

[[tasks]]
shell = "echo bye"
phase = "remove"

[[packages]]
install = ["zsh"]

[[messages]]
message = "Restart your shell"

[[messages]]
message = "Shell removed"
on_command = "remove"
`
}

func TestDeployDeploysEverything(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	dir := fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, nil)

	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	link, err := os.Readlink(fx.target(".zshrc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "zshrc"), link)

	data, err := os.ReadFile(fx.target(".env"))
	require.NoError(t, err)
	assert.Equal(t, "FOO=1", string(data))

	assert.Equal(t, types.ReasonManual, fx.reason(t, "shell"))
	assert.Equal(t, [][]string{{"zsh"}}, fx.pkgs.installed)
	assert.Equal(t, []string{"shell:setup:pre:echo setup"}, fx.tasks.ran)
	assert.Contains(t, fx.out.String(), "Restart your shell")

	removeMsgs, err := fx.store.GetCachedMessages(ctx, "shell", types.CommandRemove)
	require.NoError(t, err)
	require.Len(t, removeMsgs, 1)
	assert.Equal(t, "Shell removed", removeMsgs[0].Text)

	cached, err := fx.store.GetTasks(ctx, "shell", types.CommandRemove)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

func TestDeployIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	config := shellModule(fx) + `
[[generate]]
target = "` + fx.target(".aliases") + `"
source = "aliases"
`
	fx.module(t, "shell", config, map[string]string{"zshrc": "zsh", "env": "FOO=1", "aliases": "alias s=zsh\n"})
	e := fx.engine(t, nil)

	require.NoError(t, e.Deploy(ctx, []string{"shell"}))
	past := time.Now().Add(-time.Hour)
	for _, name := range []string{".env", ".aliases"} {
		require.NoError(t, os.Chtimes(fx.target(name), past, past))
	}
	before, err := fx.store.GetFile(ctx, fx.target(".env"))
	require.NoError(t, err)
	genBefore, err := fx.store.GetFile(ctx, fx.target(".aliases"))
	require.NoError(t, err)
	require.NotNil(t, genBefore)

	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	info, err := os.Stat(fx.target(".env"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "copy target rewritten")
	info, err = os.Stat(fx.target(".aliases"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "generated target rewritten")

	after, err := fx.store.GetFile(ctx, fx.target(".env"))
	require.NoError(t, err)
	assert.Equal(t, before.Date, after.Date)
	genAfter, err := fx.store.GetFile(ctx, fx.target(".aliases"))
	require.NoError(t, err)
	require.NotNil(t, genAfter)
	assert.True(t, genBefore.Date.Equal(genAfter.Date))
	assert.Equal(t, [][]string{{"zsh"}}, fx.pkgs.installed, "packages installed once")
	assert.Zero(t, fx.confirm.asked)
}

func TestPromotionSurvivesPruning(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "a", `depends = ["b"]`, nil)
	fx.module(t, "b", "", nil)
	e := fx.engine(t, func(o *Options) { o.NoConfirm = true })

	require.NoError(t, e.Deploy(ctx, []string{"a"}))
	assert.Equal(t, types.ReasonAutomatic, fx.reason(t, "b"))

	require.NoError(t, e.Deploy(ctx, []string{"b"}))
	assert.Equal(t, types.ReasonManual, fx.reason(t, "b"))

	fx.module(t, "a", "", nil)
	require.NoError(t, e.Deploy(ctx, []string{"a"}))
	assert.Equal(t, types.ReasonManual, fx.reason(t, "b"))
}

func TestObsoleteDependencyIsPruned(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "c", `depends = ["d"]`, nil)
	fx.module(t, "d", `
[[files]]
source = "rc"
target = "`+fx.target(".drc")+`"
`, map[string]string{"rc": "d"})
	e := fx.engine(t, func(o *Options) { o.NoConfirm = true })

	require.NoError(t, e.Deploy(ctx, []string{"c"}))
	_, err := os.Lstat(fx.target(".drc"))
	require.NoError(t, err)

	fx.module(t, "c", "", nil)
	require.NoError(t, e.Deploy(ctx, []string{"c"}))

	m, err := fx.store.GetModule(ctx, "d")
	require.NoError(t, err)
	assert.Nil(t, m)
	_, err = os.Lstat(fx.target(".drc"))
	assert.True(t, os.IsNotExist(err))
}

func TestPruneDeclinedKeepsModule(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "c", `depends = ["d"]`, nil)
	fx.module(t, "d", "", nil)
	e := fx.engine(t, nil)

	require.NoError(t, e.Deploy(ctx, []string{"c"}))
	fx.module(t, "c", "", nil)
	require.NoError(t, e.Deploy(ctx, []string{"c"}))

	assert.Equal(t, 1, fx.confirm.asked)
	assert.Equal(t, types.ReasonAutomatic, fx.reason(t, "d"))
}

func TestDeclaredTwiceAbortsBeforeDeploying(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	decl := `
[[files]]
content = "x"
type = "create"
target = "` + fx.target(".shared") + `"
`
	fx.module(t, "one", decl, nil)
	fx.module(t, "two", decl, nil)
	e := fx.engine(t, nil)

	err := e.Deploy(ctx, []string{"one", "two"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDeclaredTwice))
	assert.Contains(t, err.Error(), "declared multiple times")

	_, statErr := os.Lstat(fx.target(".shared"))
	assert.True(t, os.IsNotExist(statErr))
	mods, err := fx.store.GetAllModules(ctx)
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestDriftGate(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, nil)
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	require.NoError(t, os.WriteFile(fx.target(".env"), []byte("edited"), 0o644))

	err := e.Deploy(ctx, []string{"shell"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAborted))
	assert.Equal(t, 1, fx.confirm.asked)

	data, _ := os.ReadFile(fx.target(".env"))
	assert.Equal(t, "edited", string(data))

	fx.confirm.reply = true
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))
	data, _ = os.ReadFile(fx.target(".env"))
	assert.Equal(t, "FOO=1", string(data))
}

func TestVanishedSourceIsUndeployed(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	dir := fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, func(o *Options) { o.NoConfirm = true })
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	fx.module(t, "shell", `
[[files]]
source = "zshrc"
target = "`+fx.target(".zshrc")+`"
`, nil)
	require.NoError(t, os.Remove(filepath.Join(dir, "env")))
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	_, err := os.Lstat(fx.target(".env"))
	assert.True(t, os.IsNotExist(err))
	exists, err := fx.store.FileExists(ctx, fx.target(".env"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	require.NoError(t, os.WriteFile(fx.target(".zshrc"), []byte("mine"), 0o600))
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, func(o *Options) { o.Force = true })
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))
	fx.out.Reset()

	require.NoError(t, e.Remove(ctx, []string{"shell"}))

	data, err := os.ReadFile(fx.target(".zshrc"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
	_, err = os.Lstat(fx.target(".env"))
	assert.True(t, os.IsNotExist(err))

	m, err := fx.store.GetModule(ctx, "shell")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, [][]string{{"zsh"}}, fx.pkgs.removed)
	assert.Contains(t, fx.tasks.ran, "shell:remove:post:echo bye")
	assert.Contains(t, fx.out.String(), "Shell removed")
}

func TestRemoveRefusesImplicitManualModule(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "a", `depends = ["b"]`, nil)
	fx.module(t, "b", "", nil)
	fx.module(t, "x", `depends = ["y"]`, nil)
	fx.module(t, "y", "", nil)
	e := fx.engine(t, func(o *Options) { o.Force = true })
	require.NoError(t, e.Deploy(ctx, []string{"a", "b", "x"}))

	err := e.Remove(ctx, []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed explicitly: b")

	require.NoError(t, e.Remove(ctx, []string{"x"}))
	m, err := fx.store.GetModule(ctx, "y")
	require.NoError(t, err)
	assert.Nil(t, m, "automatic dependency removed with its dependent")

	err = e.Remove(ctx, []string{"nope"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrModuleNotDeployed))
}

func TestDryRunChangesNothing(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, func(o *Options) { o.DryRun = true })

	require.NoError(t, e.Deploy(ctx, []string{"shell"}))

	_, err := os.Lstat(fx.target(".zshrc"))
	assert.True(t, os.IsNotExist(err))
	mods, err := fx.store.GetAllModules(ctx)
	require.NoError(t, err)
	assert.Empty(t, mods)
	assert.Empty(t, fx.tasks.ran)

	out := fx.out.String()
	assert.Contains(t, out, fx.target(".zshrc"))
	assert.Contains(t, out, "not-deployed")
	assert.Contains(t, out, "install")
}

func TestSyncRequiresDeployedModules(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, nil)

	err := e.Sync(ctx, []string{"shell"}, nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModuleNotDeployed))

	require.NoError(t, e.Deploy(ctx, []string{"shell"}))
	fx.tasks.ran = nil
	only, err := ParseComponents([]string{"files"})
	require.NoError(t, err)
	require.NoError(t, e.Sync(ctx, nil, only))
	assert.Empty(t, fx.tasks.ran)
}

func TestUpdateRunsCachedTasks(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "tool", `
[[tasks]]
shell = "git pull"
phase = "update"

[[tasks]]
shell = "prepare"
phase = "update"
hook = "pre"

[[messages]]
message = "Tool updated"
on_command = "update"
`, nil)
	e := fx.engine(t, nil)
	require.NoError(t, e.Deploy(ctx, []string{"tool"}))
	assert.Empty(t, fx.tasks.ran)

	require.NoError(t, e.Update(ctx, nil))
	assert.Equal(t, []string{"tool:update:pre:prepare", "tool:update:post:git pull"}, fx.tasks.ran)
	assert.Contains(t, fx.out.String(), "Tool updated")
}

func TestChangedRemoveTaskRunsWhenDropped(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "tool", `
[[tasks]]
shell = "old cleanup"
phase = "remove"
`, nil)
	e := fx.engine(t, nil)
	require.NoError(t, e.Deploy(ctx, []string{"tool"}))

	fx.module(t, "tool", `
[[tasks]]
shell = "new cleanup"
phase = "remove"
`, nil)
	require.NoError(t, e.Deploy(ctx, []string{"tool"}))
	assert.Equal(t, []string{"tool:remove:post:old cleanup"}, fx.tasks.ran)

	cached, err := fx.store.GetTasks(ctx, "tool", types.CommandRemove)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "new cleanup", cached[0].Task.Shell)
}

func TestFailingRemoveHookKeepsTaskCached(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "tool", `
[[tasks]]
shell = "old cleanup"
phase = "remove"
`, nil)
	e := fx.engine(t, nil)
	require.NoError(t, e.Deploy(ctx, []string{"tool"}))

	fx.module(t, "tool", "", nil)
	fx.tasks.fail = "old cleanup"
	err := e.Deploy(ctx, []string{"tool"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTaskFailed))

	cached, err := fx.store.GetTasks(ctx, "tool", types.CommandRemove)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "old cleanup", cached[0].Task.Shell)

	fx.tasks.fail = ""
	require.NoError(t, e.Deploy(ctx, []string{"tool"}))
	assert.Equal(t, []string{"tool:remove:post:old cleanup"}, fx.tasks.ran)

	cached, err = fx.store.GetTasks(ctx, "tool", types.CommandRemove)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})
	e := fx.engine(t, nil)
	require.NoError(t, e.Deploy(ctx, []string{"shell"}))
	require.NoError(t, os.WriteFile(fx.target(".env"), []byte("edited"), 0o644))

	status, err := e.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, "shell", status[0].Name)
	assert.Equal(t, []string{"zsh"}, status[0].Packages)
	require.Len(t, status[0].Files, 2)

	drifted := map[string]bool{}
	for _, f := range status[0].Files {
		drifted[f.Target] = f.Drifted
	}
	assert.True(t, drifted[fx.target(".env")])
	assert.False(t, drifted[fx.target(".zshrc")])
}

func TestGeneratedFilesFollowModules(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	gen := `
[[generate]]
target = "` + fx.target(".aliases") + `"
source = "aliases"
prepend = "# generated\n"
`
	fx.module(t, "git", gen, map[string]string{"aliases": "alias g=git\n"})
	fx.module(t, "ls", gen, map[string]string{"aliases": "alias l=ls\n"})
	e := fx.engine(t, func(o *Options) { o.Force = true })

	require.NoError(t, e.Deploy(ctx, []string{"git", "ls"}))
	data, err := os.ReadFile(fx.target(".aliases"))
	require.NoError(t, err)
	assert.Equal(t, "# generated\nalias g=git\nalias l=ls\n", string(data))

	require.NoError(t, e.Remove(ctx, []string{"ls"}))
	data, err = os.ReadFile(fx.target(".aliases"))
	require.NoError(t, err)
	assert.Equal(t, "# generated\nalias g=git\n", string(data))
}

func TestGeneratedFileRestoresPreviousContent(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	require.NoError(t, os.WriteFile(fx.target(".aliases"), []byte("alias ll='ls -l'\n"), 0o644))
	fx.module(t, "git", `
[[generate]]
target = "`+fx.target(".aliases")+`"
source = "aliases"
`, map[string]string{"aliases": "alias g=git\n"})
	e := fx.engine(t, func(o *Options) { o.Force = true })

	require.NoError(t, e.Deploy(ctx, []string{"git"}))
	data, err := os.ReadFile(fx.target(".aliases"))
	require.NoError(t, err)
	assert.Equal(t, "alias g=git\n", string(data))

	require.NoError(t, e.Remove(ctx, []string{"git"}))
	data, err = os.ReadFile(fx.target(".aliases"))
	require.NoError(t, err)
	assert.Equal(t, "alias ll='ls -l'\n", string(data))
}

func TestSkippedPackagesInstallOnNextDeploy(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.module(t, "shell", shellModule(fx), map[string]string{"zshrc": "zsh", "env": "FOO=1"})

	require.NoError(t, fx.engine(t, func(o *Options) { o.SkipPkgInstall = true }).Deploy(ctx, []string{"shell"}))
	assert.Empty(t, fx.pkgs.installed)
	pkgs, err := fx.store.GetModulePackages(ctx, "shell")
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	require.NoError(t, fx.engine(t, nil).Deploy(ctx, []string{"shell"}))
	assert.Equal(t, [][]string{{"zsh"}}, fx.pkgs.installed)
}

func TestParseComponents(t *testing.T) {
	c, err := ParseComponents([]string{"files,tasks"})
	require.NoError(t, err)
	assert.True(t, c.Has(ComponentFiles))
	assert.True(t, c.Has(ComponentTasks))
	assert.False(t, c.Has(ComponentPackages))

	all, err := ParseComponents(nil)
	require.NoError(t, err)
	assert.True(t, all.Has(ComponentPackages))

	_, err = ParseComponents([]string{"bogus"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}
