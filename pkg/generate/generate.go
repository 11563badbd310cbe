// Package generate assembles files from snippets spread across modules.
//
// A generator names a target and a snippet path. The generated content is
// the rendered prepend text, then the rendered snippet of every deployed
// module that has one, in module name order, then the rendered append
// text. Generated files are tracked under a synthetic module.
package generate

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotdeploy/pkg/filesystem"
	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/internal/hashutil"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/render"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Store is the part of the store generation uses
type Store interface {
	GetAllModules(ctx context.Context) ([]store.Module, error)
	GetAllFiles(ctx context.Context, module string) ([]store.File, error)
	AddModule(ctx context.Context, m store.Module) error
	GetFile(ctx context.Context, destination string) (*store.File, error)
	AddFile(ctx context.Context, f store.File) error
	RemoveFile(ctx context.Context, destination string) error
	AddBackup(ctx context.Context, path string) error
	AddDummyBackup(ctx context.Context, path string) error
	BackupExists(ctx context.Context, path string) (bool, error)
	RestoreBackup(ctx context.Context, target, to string) error
	RemoveBackup(ctx context.Context, path string) error
}

// Generator writes generated files
type Generator struct {
	store       Store
	ops         *filesystem.Ops
	fs          filesystem.FS
	renderer    render.Renderer
	modulesRoot string
	logger      zerolog.Logger
}

// New returns a Generator; snippets are read through fsys
func New(st Store, ops *filesystem.Ops, fsys filesystem.FS, renderer render.Renderer, modulesRoot string) *Generator {
	return &Generator{
		store:       st,
		ops:         ops,
		fs:          fsys,
		renderer:    renderer,
		modulesRoot: modulesRoot,
		logger:      logging.GetLogger("generate"),
	}
}

// Generate writes every generator's target. Targets generated before but
// not declared anymore are deleted first.
func (g *Generator) Generate(ctx context.Context, gens []types.Generator, rctx render.Context, limit int) error {
	wanted := make(map[string]bool, len(gens))
	for _, gen := range gens {
		wanted[gen.Target] = true
	}

	previous, err := g.store.GetAllFiles(ctx, types.GeneratedModule)
	if err != nil {
		return err
	}
	for _, f := range previous {
		if wanted[f.Destination] {
			continue
		}
		if err := g.drop(ctx, f.Destination); err != nil {
			return err
		}
	}

	if len(gens) == 0 {
		return nil
	}

	mods, err := g.store.GetAllModules(ctx)
	if err != nil {
		return err
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })

	if err := g.store.AddModule(ctx, store.Module{
		Name:     types.GeneratedModule,
		Location: g.modulesRoot,
		Reason:   types.ReasonAutomatic,
	}); err != nil {
		return err
	}

	return batch.Run(ctx, len(gens), limit, func(ctx context.Context, i int) error {
		return g.generate(ctx, gens[i], mods, rctx)
	})
}

func (g *Generator) generate(ctx context.Context, gen types.Generator, mods []store.Module, rctx render.Context) error {
	content, err := g.Content(gen, mods, rctx)
	if err != nil {
		return err
	}
	if content == "" {
		g.logger.Debug().Str("target", gen.Target).Msg("Nothing to generate")
		return g.drop(ctx, gen.Target)
	}

	data := []byte(content)
	sum := hashutil.CalculateChecksum(data)
	current, err := g.current(ctx, gen.Target, sum)
	if err != nil || current {
		return err
	}

	if err := g.backup(ctx, gen.Target); err != nil {
		return err
	}
	if err := g.ops.WriteFile(ctx, gen.Target, data, 0o644); err != nil {
		return err
	}
	if err := g.store.AddFile(ctx, store.File{
		Module:              types.GeneratedModule,
		Destination:         gen.Target,
		DestinationChecksum: sum,
		Operation:           types.OperationGenerate,
	}); err != nil {
		return err
	}
	g.logger.Info().Str("target", gen.Target).Int("bytes", len(data)).Msg("Generated")
	return nil
}

// current reports whether target is recorded and on disk with checksum sum
func (g *Generator) current(ctx context.Context, target, sum string) (bool, error) {
	entry, err := g.store.GetFile(ctx, target)
	if err != nil || entry == nil || entry.DestinationChecksum != sum {
		return false, err
	}
	exists, err := g.ops.Exists(ctx, target)
	if err != nil || !exists {
		return false, err
	}
	live, err := g.ops.Checksum(ctx, target)
	if err != nil {
		return false, err
	}
	if live != sum {
		return false, nil
	}
	g.logger.Debug().Str("target", target).Msg("Generated file up to date")
	return true, nil
}

// backup records what occupies target before it is first generated
func (g *Generator) backup(ctx context.Context, target string) error {
	has, err := g.store.BackupExists(ctx, target)
	if err != nil || has {
		return err
	}
	exists, err := g.ops.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return g.store.AddDummyBackup(ctx, target)
	}
	g.logger.Debug().Str("target", target).Msg("Backing up existing file")
	return g.store.AddBackup(ctx, target)
}

// Content renders the generated text of gen from the snippets of mods
func (g *Generator) Content(gen types.Generator, mods []store.Module, rctx render.Context) (string, error) {
	var sb strings.Builder

	if gen.Prepend != "" {
		out, err := g.renderer.Render(gen.Prepend, rctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}

	for _, m := range mods {
		if m.Name == types.GeneratedModule {
			continue
		}
		snippet := filepath.Join(m.Location, gen.Source)
		data, err := g.fs.ReadFile(snippet)
		if err != nil {
			continue
		}
		mctx := rctx.With(map[string]string{render.KeyCurrentModule: m.Location})
		out, err := g.renderer.Render(string(data), mctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}

	if gen.Append != "" {
		out, err := g.renderer.Render(gen.Append, rctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// drop deletes a generated target and restores what it replaced.
// Targets that were never generated are left alone.
func (g *Generator) drop(ctx context.Context, target string) error {
	entry, err := g.store.GetFile(ctx, target)
	if err != nil || entry == nil {
		return err
	}
	if err := g.ops.Delete(ctx, target); err != nil {
		return err
	}

	has, err := g.store.BackupExists(ctx, target)
	if err != nil {
		return err
	}
	if has {
		if err := g.store.RestoreBackup(ctx, target, target); err != nil {
			return err
		}
		if err := g.store.RemoveBackup(ctx, target); err != nil {
			return err
		}
	}
	g.logger.Info().Str("target", target).Bool("restored", has).Msg("Removed generated file")
	return g.store.RemoveFile(ctx, target)
}
