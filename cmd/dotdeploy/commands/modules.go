package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/dotdeploy/pkg/orchestrator"
)

func newDeployCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "deploy <module>...",
		Short:   MsgDeployShort,
		Long:    MsgDeployLong,
		Example: MsgDeployExample,
		GroupID: "core",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, g, MsgErrDeploy, func(ctx context.Context, a *app) error {
				return a.engine.Deploy(ctx, args)
			})
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:     "sync [module...]",
		Short:   MsgSyncShort,
		Long:    MsgSyncLong,
		Example: MsgSyncExample,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := orchestrator.ParseComponents(only)
			if err != nil {
				return err
			}
			return withEngine(cmd, g, MsgErrSync, func(ctx context.Context, a *app) error {
				return a.engine.Sync(ctx, args, components)
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, MsgFlagOnly)
	return cmd
}

func newRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <module>...",
		Aliases: []string{"rm"},
		Short:   MsgRemoveShort,
		Long:    MsgRemoveLong,
		Example: MsgRemoveExample,
		GroupID: "core",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, g, MsgErrRemove, func(ctx context.Context, a *app) error {
				return a.engine.Remove(ctx, args)
			})
		},
	}
}

func newUpdateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "update [module...]",
		Short:   MsgUpdateShort,
		Long:    MsgUpdateLong,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, g, MsgErrUpdate, func(ctx context.Context, a *app) error {
				return a.engine.Update(ctx, args)
			})
		},
	}
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   MsgStatusShort,
		Long:    MsgStatusLong,
		Example: MsgStatusExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, g, MsgErrStatus, func(ctx context.Context, a *app) error {
				modules, err := a.engine.Status(ctx)
				if err != nil {
					return err
				}
				if err := a.output.RenderStatus(modules); err != nil {
					return fmt.Errorf("failed to render status: %w", err)
				}
				return nil
			})
		},
	}
}
