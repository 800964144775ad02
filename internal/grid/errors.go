package grid

import "fmt"

// ConfigError reports an invalid sweep declaration: an empty grid, a
// malformed template, an unknown stage type. It is always raised during
// construction, before any evaluation starts, so a malformed sweep never
// wastes partial work.
type ConfigError struct {
	msg string
}

// Errorf builds a ConfigError with fmt semantics.
func Errorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "invalid sweep configuration: " + e.msg
}
