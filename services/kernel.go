// Package services supplies the Go factories behind the built-in service
// definitions: the kernel logger, event dispatcher and HTTP router.
package services

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gillix/symfony-container-loader/container"
	"github.com/gillix/symfony-container-loader/events"
	"github.com/gillix/symfony-container-loader/routing"
)

// Factory names referenced by the built-in configuration.
const (
	FactoryLogger          = "kernel.logger"
	FactoryEventDispatcher = "kernel.event_dispatcher"
	FactoryRouter          = "kernel.router"
)

// KernelFactories returns a registry holding the kernel factories. The loader
// starts from this registry and merges application factories on top, so an
// application may replace any kernel factory by registering the same name.
func KernelFactories() *container.FactoryRegistry {
	reg := container.NewFactoryRegistry()
	reg.Register(FactoryLogger, LoggerFactory(os.Stderr))
	reg.Register(FactoryEventDispatcher, func(c *container.Container, args []any) (any, error) {
		return events.NewDispatcher(), nil
	})
	reg.Register(FactoryRouter, func(c *container.Container, args []any) (any, error) {
		logger := slog.Default()
		if len(args) > 0 && args[0] != nil {
			l, ok := args[0].(*slog.Logger)
			if !ok {
				return nil, fmt.Errorf("kernel.router: first argument must be the logger service, got %T", args[0])
			}
			logger = l
		}
		return routing.New(logger), nil
	})
	return reg
}

// LoggerFactory builds *slog.Logger services writing to w. Arguments: level
// (debug|info|warn|error) and format (text|json), both optional.
func LoggerFactory(w io.Writer) container.Factory {
	return func(c *container.Container, args []any) (any, error) {
		level, format := "info", "text"
		if len(args) > 0 {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("kernel.logger: level must be a string, got %T", args[0])
			}
			level = s
		}
		if len(args) > 1 {
			s, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("kernel.logger: format must be a string, got %T", args[1])
			}
			format = s
		}
		return NewLogger(level, format, w), nil
	}
}

// NewLogger builds a slog.Logger with the given level and format. It does not
// touch the global logger; containers own their logger instances.
func NewLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
