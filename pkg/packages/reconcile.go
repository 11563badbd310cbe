package packages

import (
	"context"
	"sort"

	"github.com/arthur-debert/dotdeploy/pkg/logging"
)

// Store records which module requested which package
type Store interface {
	AddPackage(ctx context.Context, module, name string) error
	RemovePackage(ctx context.Context, module, name string) error
	GetModulePackages(ctx context.Context, module string) ([]string, error)
	GetOtherModulePackages(ctx context.Context, module string) ([]string, error)
}

// Installer is the package manager surface Reconcile drives
type Installer interface {
	Install(ctx context.Context, pkgs []string) error
	Remove(ctx context.Context, pkgs []string) error
}

// Reconcile brings the recorded package set of every module in requested
// to the requested one. Packages no longer requested and not claimed by
// another module are uninstalled; newly requested packages are installed
// and then recorded. Modules run one after another. With skipInstall
// nothing is installed, removed or recorded, so a later run still sees
// the pending work.
func Reconcile(ctx context.Context, st Store, pm Installer, requested map[string][]string, skipInstall bool) error {
	logger := logging.GetLogger("packages.reconcile")
	if skipInstall {
		logger.Info().Int("modules", len(requested)).Msg("Package installation skipped")
		return nil
	}

	names := make([]string, 0, len(requested))
	for name := range requested {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, module := range names {
		want := requested[module]
		stored, err := st.GetModulePackages(ctx, module)
		if err != nil {
			return err
		}

		stale := difference(stored, want)
		if len(stale) > 0 {
			others, err := st.GetOtherModulePackages(ctx, module)
			if err != nil {
				return err
			}
			if unclaimed := difference(stale, others); len(unclaimed) > 0 {
				if err := pm.Remove(ctx, unclaimed); err != nil {
					return err
				}
			}
			for _, name := range stale {
				if err := st.RemovePackage(ctx, module, name); err != nil {
					return err
				}
			}
		}

		fresh := difference(want, stored)
		if len(fresh) == 0 {
			continue
		}
		if err := pm.Install(ctx, fresh); err != nil {
			return err
		}
		for _, name := range fresh {
			if err := st.AddPackage(ctx, module, name); err != nil {
				return err
			}
		}
		logger.Info().Str("module", module).Strs("installed", fresh).Strs("removed", stale).Msg("Packages reconciled")
	}
	return nil
}

// Purge uninstalls every package of module that no other module claims
// and forgets them all. With skipInstall the records are left alone.
func Purge(ctx context.Context, st Store, pm Installer, module string, skipInstall bool) error {
	if skipInstall {
		return nil
	}
	stored, err := st.GetModulePackages(ctx, module)
	if err != nil || len(stored) == 0 {
		return err
	}
	others, err := st.GetOtherModulePackages(ctx, module)
	if err != nil {
		return err
	}
	if unclaimed := difference(stored, others); len(unclaimed) > 0 {
		if err := pm.Remove(ctx, unclaimed); err != nil {
			return err
		}
	}
	for _, name := range stored {
		if err := st.RemovePackage(ctx, module, name); err != nil {
			return err
		}
	}
	return nil
}

// difference returns the elements of a not in b, in the order of a
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
