package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
)

// Lookup resolves a variable name during expansion
type Lookup func(name string) (string, bool)

// ExpandHome expands a leading ~ to the home directory
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	homeDir, err := HomeDir()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return homeDir
	}

	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}

	// ~user is left alone
	return path
}

// Expand performs shell-style expansion of ~, $VAR and ${VAR}.
// Variables are resolved through vars first and the environment second;
// an unresolvable variable is an error.
func Expand(path string, vars Lookup) (string, error) {
	var missing []string
	expanded := os.Expand(path, func(name string) string {
		if vars != nil {
			if v, ok := vars(name); ok {
				return v
			}
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", errors.Newf(errors.ErrPathInvalid, "undefined variable %s in %q", strings.Join(missing, ", "), path).
			WithDetail("path", path)
	}
	return ExpandHome(expanded), nil
}

// MapLookup adapts a map to a Lookup
func MapLookup(m map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}

// IsUnder reports whether path lies inside dir
func IsUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
