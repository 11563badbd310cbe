package types

import "fmt"

// Phase is a deployment stage a file or task belongs to
type Phase string

const (
	PhaseSetup  Phase = "setup"
	PhaseConfig Phase = "config"
	PhaseUpdate Phase = "update"
	PhaseRemove Phase = "remove"
)

// ParsePhase validates a phase name
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseSetup, PhaseConfig, PhaseUpdate, PhaseRemove:
		return Phase(s), nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// IsFilePhase reports whether files may be deployed in this phase
func (p Phase) IsFilePhase() bool {
	return p == PhaseSetup || p == PhaseConfig
}

// Command returns the command whose cache holds tasks of this phase
func (p Phase) Command() Command {
	switch p {
	case PhaseUpdate:
		return CommandUpdate
	case PhaseRemove:
		return CommandRemove
	default:
		return CommandDeploy
	}
}

// Hook places a task before or after the file step of its phase
type Hook string

const (
	HookPre  Hook = "pre"
	HookPost Hook = "post"
)

// ParseHook validates a hook name
func ParseHook(s string) (Hook, error) {
	switch Hook(s) {
	case HookPre, HookPost:
		return Hook(s), nil
	default:
		return "", fmt.Errorf("unknown hook %q (expected pre or post)", s)
	}
}

// Command is a user-facing command that tasks and messages are cached for
type Command string

const (
	CommandDeploy Command = "deploy"
	CommandUpdate Command = "update"
	CommandRemove Command = "remove"
)

// ParseCommand validates a command name
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case CommandDeploy, CommandUpdate, CommandRemove:
		return Command(s), nil
	default:
		return "", fmt.Errorf("unknown command %q (expected deploy, update or remove)", s)
	}
}
