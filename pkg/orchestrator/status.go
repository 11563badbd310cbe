package orchestrator

import (
	"context"

	"github.com/arthur-debert/dotdeploy/pkg/internal/batch"
	"github.com/arthur-debert/dotdeploy/pkg/store"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

// Status summarizes every stored module, drift included
func (e *Engine) Status(ctx context.Context) ([]types.ModuleStatus, error) {
	mods, err := e.store.GetAllModules(ctx)
	if err != nil {
		return nil, err
	}
	return batch.Map(ctx, mods, e.opts.Concurrency, func(ctx context.Context, m store.Module) (types.ModuleStatus, error) {
		status := types.ModuleStatus{
			Name:     m.Name,
			Reason:   m.Reason,
			Location: m.Location,
			User:     m.User,
			Depends:  m.Depends,
			Date:     m.Date,
		}

		files, err := e.store.GetAllFiles(ctx, m.Name)
		if err != nil {
			return status, err
		}
		for _, f := range files {
			drifted, err := e.reconciler.Drifted(ctx, f)
			if err != nil {
				e.logger.Warn().Err(err).Str("target", f.Destination).Msg("Cannot check for modifications")
			}
			status.Files = append(status.Files, types.FileStatus{
				Target:    f.Destination,
				Source:    f.Source,
				Operation: f.Operation.String(),
				Drifted:   drifted,
			})
		}

		status.Packages, err = e.store.GetModulePackages(ctx, m.Name)
		return status, err
	})
}
