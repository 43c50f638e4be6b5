package facade

import "fmt"

// StoreOpenError reports an inaccessible store location or an
// incompatible on-disk schema.
type StoreOpenError struct {
	Path string
	Err  error
}

func (e *StoreOpenError) Error() string {
	return fmt.Sprintf("failed to open store at %s: %v", e.Path, e.Err)
}

func (e *StoreOpenError) Unwrap() error { return e.Err }

// SaveError reports a transaction the engine rejected.
type SaveError struct {
	Context string
	Err     error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save context %q: %v", e.Context, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// FetchError reports a malformed query reaching the engine.
type FetchError struct {
	Entity string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch of %q failed: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or contradictory option.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration option %q: %s", e.Option, e.Reason)
}

// NotFoundError reports an absent source file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no such file: %s", e.Path)
}

// MisuseError signals invalid use of the API: a programming error, not
// a runtime condition. It is delivered by panic and callers are not
// expected to recover it.
type MisuseError struct {
	Reason string
}

func (e *MisuseError) Error() string { return "misuse: " + e.Reason }

func misuse(format string, args ...any) {
	panic(&MisuseError{Reason: fmt.Sprintf(format, args...)})
}
