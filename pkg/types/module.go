package types

import "fmt"

// Reason records why a module is deployed
type Reason string

const (
	// ReasonManual marks a module that was requested explicitly
	ReasonManual Reason = "manual"
	// ReasonAutomatic marks a module that was pulled in as a dependency
	ReasonAutomatic Reason = "automatic"
)

// ParseReason validates a stored reason
func ParseReason(s string) (Reason, error) {
	switch Reason(s) {
	case ReasonManual, ReasonAutomatic:
		return Reason(s), nil
	default:
		return "", fmt.Errorf("unknown module reason %q", s)
	}
}

// GeneratedModule is the synthetic module that owns generated files
const GeneratedModule = "__dotdeploy_generated"
