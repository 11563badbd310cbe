package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/dotdeploy/internal/version"
	"github.com/arthur-debert/dotdeploy/pkg/logging"
	"github.com/arthur-debert/dotdeploy/pkg/paths"
)

// annotationNoConfig marks commands that run without loading the configuration
const annotationNoConfig = "dotdeploy/no-config"

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "dotdeploy",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoConfig] != "" {
				logging.SetupLoggerWithOptions(logging.Options{
					Verbosity: g.verbosity,
					Console:   cmd.ErrOrStderr(),
				})
				return nil
			}
			if err := g.load(cmd); err != nil {
				logging.SetupLoggerWithOptions(logging.Options{
					Verbosity: g.verbosity,
					Console:   cmd.ErrOrStderr(),
				})
				return err
			}
			p, err := paths.New()
			if err != nil {
				return err
			}
			logging.SetupLoggerWithOptions(logging.Options{
				Verbosity: g.verbosity,
				LogDir:    p.LogDir(),
				MaxFiles:  g.cfg.LogsMax,
				Console:   cmd.ErrOrStderr(),
			})
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf(MsgErrNoCommand)
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Annotations: map[string]string{annotationNoConfig: "true"},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&g.verbosity, "verbose", "v", MsgFlagVerbose)
	flags.BoolVar(&g.dryRun, "dry-run", false, MsgFlagDryRun)
	flags.BoolVarP(&g.force, "force", "f", false, MsgFlagForce)
	flags.BoolVarP(&g.noConfirm, "noconfirm", "y", false, MsgFlagNoConfirm)
	flags.BoolVar(&g.skipPkgInstall, "skip-pkg-install", false, MsgFlagSkipPkgInstall)
	flags.StringVarP(&g.configFile, "config", "c", "", MsgFlagConfig)
	flags.StringVar(&g.format, "format", "auto", MsgFlagFormat)

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "COMMANDS:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "misc",
		Title: "MISC:",
	})

	rootCmd.AddCommand(newDeployCmd(g))
	rootCmd.AddCommand(newSyncCmd(g))
	rootCmd.AddCommand(newRemoveCmd(g))
	rootCmd.AddCommand(newUpdateCmd(g))
	rootCmd.AddCommand(newStatusCmd(g))
	rootCmd.AddCommand(newConfigCmd(g))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newManCmd())

	return rootCmd
}
