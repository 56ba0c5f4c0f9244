package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// FieldError reports one setting that failed validation.
type FieldError struct {
	Field  string // JSON name, e.g. "timezone" or "generators.CodeHelper"
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ConfigNotFoundError is returned by LoadFrom when no config file exists.
// LoadOrDefault treats it as "use the built-in defaults".
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("no skill-hub config at %s\n💡 Run 'skill-hub setup' to create one, or set %s to use another file", e.Path, EnvConfigPath)
}

// InvalidConfigError reports a config file that cannot be used. Field is
// empty when the file is not valid JSON.
type InvalidConfigError struct {
	Path    string
	Field   string
	Message string
}

func (e *InvalidConfigError) Error() string {
	msg := "invalid config " + e.Path
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += "\n" + e.Message
	}
	return msg + "\n💡 " + e.hint()
}

func (e *InvalidConfigError) hint() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("Restore %s.bak or rerun 'skill-hub setup --force'", e.Path)
	case e.Field == "storageBackend":
		return fmt.Sprintf("Set \"storageBackend\" to %q or %q", BackendSQLite, BackendJournal)
	case e.Field == "timezone":
		return "Use an IANA zone such as \"Europe/Berlin\", or remove \"timezone\" to count quota days in local time"
	case e.Field == "tiersFile":
		return "Point \"tiersFile\" at a YAML tier catalog, or remove it to use Free/Pro/Creator"
	case strings.HasPrefix(e.Field, "generators."):
		return "Each entry under \"generators\" needs a \"command\" other than skill-hub and a non-negative \"timeoutSeconds\""
	default:
		return "Fix the setting or remove it to use the default"
	}
}

// PermissionError reports a config file or directory skill-hub may not
// read or write.
type PermissionError struct {
	Path string
	Op   string      // "read" or "write"
	Mode os.FileMode // zero when unknown
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: cannot %s skill-hub config %s", e.Op, e.Path)
	if e.Mode != 0 {
		msg += fmt.Sprintf(" (mode %04o)", e.Mode.Perm())
	}
	return msg + "\n💡 Fix: " + e.fix()
}

func (e *PermissionError) fix() string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("grant your account %s access to %s, or set %s to a file you own", e.Op, e.Path, EnvConfigPath)
	}
	mode := "u+r"
	if e.Op == "write" {
		mode = "u+w"
	}
	return fmt.Sprintf("Run: chmod %s %s, or set %s to a file you own", mode, e.Path, EnvConfigPath)
}
