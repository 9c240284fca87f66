package container

import (
	"strconv"
	"strings"
)

// The loader error family mirrors the three ways a container load can fail:
// the caller handed over unusable data (InvalidParameterError), the machine
// the loader runs on is not set up for it (WrongInfrastructureError), or
// compilation/persistence broke after the inputs checked out
// (LoadingFailedError). All three wrap their cause so errors.Is/As keep
// working through the chain.

// ── Load failures ─────────────────────────────────────────────────────────────

// InvalidParameterError reports caller-supplied data the loader cannot use,
// such as an empty config path or the same file listed twice.
type InvalidParameterError struct {
	// Param names the offending input.
	Param string

	// Reason says what is wrong with it.
	Reason string

	// Cause is the underlying error, when one exists.
	Cause error
}

// Error implements the error interface.
func (e *InvalidParameterError) Error() string {
	msg := "container: invalid parameter " + strconv.Quote(e.Param) + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InvalidParameterError) Unwrap() error { return e.Cause }

// WrongInfrastructureError reports a runtime environment the loader cannot
// work in: no resolvable project root, a missing cache directory, a broken
// environment file.
type WrongInfrastructureError struct {
	// Path is the filesystem location involved, when one exists.
	Path string

	// Reason says what is unusable.
	Reason string

	// Cause is the underlying error, when one exists.
	Cause error
}

// Error implements the error interface.
func (e *WrongInfrastructureError) Error() string {
	msg := "container: infrastructure not usable: " + e.Reason
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *WrongInfrastructureError) Unwrap() error { return e.Cause }

// LoadingFailedError reports that compiling or persisting the container
// failed after the inputs were accepted. The cause chain is preserved.
type LoadingFailedError struct {
	// Stage names the step that failed ("compile", "persist", ...).
	Stage string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *LoadingFailedError) Error() string {
	msg := "container: loading failed"
	if e.Stage != "" {
		msg += " during " + e.Stage
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *LoadingFailedError) Unwrap() error { return e.Cause }

// ── Resolution failures ───────────────────────────────────────────────────────

// ServiceNotFoundError is returned by Get for ids without a definition, and
// for private services fetched directly.
//
//	// Symfony: ServiceNotFoundException ("Did you mean ...?")
type ServiceNotFoundError struct {
	// ID is the requested service id.
	ID string

	// Private is true when the id exists but is not public.
	Private bool

	// Suggestion holds the closest known id, when one is close enough.
	Suggestion string
}

// Error implements the error interface.
func (e *ServiceNotFoundError) Error() string {
	if e.Private {
		return "container: service " + strconv.Quote(e.ID) + " is private and cannot be fetched directly"
	}
	msg := "container: no service registered for " + strconv.Quote(e.ID)
	if e.Suggestion != "" {
		msg += ", did you mean " + strconv.Quote(e.Suggestion) + "?"
	}
	return msg
}

// ParameterNotFoundError is returned when a parameter lookup or a "%name%"
// placeholder points at nothing.
type ParameterNotFoundError struct {
	// Name is the missing parameter name.
	Name string
}

// Error implements the error interface.
func (e *ParameterNotFoundError) Error() string {
	return "container: no parameter named " + strconv.Quote(e.Name)
}

// FactoryNotFoundError is returned when a definition names a factory that was
// never registered: the configuration and the compiled-in factories disagree.
type FactoryNotFoundError struct {
	// Name is the missing factory name.
	Name string

	// ServiceID is the definition that referenced it.
	ServiceID string
}

// Error implements the error interface.
func (e *FactoryNotFoundError) Error() string {
	return "container: no factory registered for " + strconv.Quote(e.Name) +
		" (service " + strconv.Quote(e.ServiceID) + ")"
}

// CircularReferenceError is returned when resolving a service loops back on
// itself, either through arguments or through an alias chain.
//
//	// Symfony: ServiceCircularReferenceException
type CircularReferenceError struct {
	// Path is the resolution chain, ending with the repeated id.
	Path []string
}

// Error implements the error interface.
func (e *CircularReferenceError) Error() string {
	return "container: circular reference: " + strings.Join(e.Path, " -> ")
}
