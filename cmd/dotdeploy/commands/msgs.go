package commands

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Deploy dotfiles, packages and setup tasks"
	MsgDeployShort     = "Deploy modules and their dependencies"
	MsgSyncShort       = "Bring deployed modules up to date"
	MsgRemoveShort     = "Remove deployed modules"
	MsgUpdateShort     = "Run the update tasks of deployed modules"
	MsgStatusShort     = "Show deployed modules"
	MsgConfigShort     = "Print the effective configuration"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"
	MsgManShort        = "Generate the man page"

	// Status messages
	MsgDryRunNotice = "DRY RUN MODE - No changes were made"
	MsgVersionLine  = "dotdeploy version %s\n"
	MsgCommitLine   = "  commit: %s\n"
	MsgBuiltLine    = "  built:  %s\n"

	// Error messages
	MsgErrNoCommand  = "no command specified"
	MsgErrDeploy     = "failed to deploy modules: %w"
	MsgErrSync       = "failed to sync modules: %w"
	MsgErrRemove     = "failed to remove modules: %w"
	MsgErrUpdate     = "failed to update modules: %w"
	MsgErrStatus     = "failed to get module status: %w"
	MsgErrCloseStore = "failed to close store: %w"

	// Flag descriptions
	MsgFlagVerbose        = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun         = "Preview changes without executing them"
	MsgFlagForce          = "Skip every confirmation, overwriting modified files"
	MsgFlagNoConfirm      = "Answer yes to every confirmation"
	MsgFlagConfig         = "Read configuration from this file only"
	MsgFlagFormat         = "Output format: auto, term, text, json, yaml or xml"
	MsgFlagSkipPkgInstall = "Record packages without installing or removing them"
	MsgFlagOnly           = "Sync only these components: files, tasks, packages"
)

// Embedded message files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/deploy-long.txt
	msgDeployLongRaw string
	MsgDeployLong    = strings.TrimSpace(msgDeployLongRaw)

	//go:embed msgs/deploy-example.txt
	msgDeployExampleRaw string
	MsgDeployExample    = strings.TrimRight(msgDeployExampleRaw, "\n")

	//go:embed msgs/sync-long.txt
	msgSyncLongRaw string
	MsgSyncLong    = strings.TrimSpace(msgSyncLongRaw)

	//go:embed msgs/sync-example.txt
	msgSyncExampleRaw string
	MsgSyncExample    = strings.TrimRight(msgSyncExampleRaw, "\n")

	//go:embed msgs/remove-long.txt
	msgRemoveLongRaw string
	MsgRemoveLong    = strings.TrimSpace(msgRemoveLongRaw)

	//go:embed msgs/remove-example.txt
	msgRemoveExampleRaw string
	MsgRemoveExample    = strings.TrimRight(msgRemoveExampleRaw, "\n")

	//go:embed msgs/update-long.txt
	msgUpdateLongRaw string
	MsgUpdateLong    = strings.TrimSpace(msgUpdateLongRaw)

	//go:embed msgs/status-long.txt
	msgStatusLongRaw string
	MsgStatusLong    = strings.TrimSpace(msgStatusLongRaw)

	//go:embed msgs/status-example.txt
	msgStatusExampleRaw string
	MsgStatusExample    = strings.TrimRight(msgStatusExampleRaw, "\n")
)
