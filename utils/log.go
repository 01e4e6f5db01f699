package utils

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

var levels = map[string]slog.Level{
	"trace": log.LevelTrace,
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
	"crit":  log.LevelCrit,
}

// NewLogger builds the root logger from the log config and installs it as
// the go-ethereum default, so package level log calls share its handler.
func NewLogger(w io.Writer, cfg LogConfig) (log.Logger, error) {
	lvl, ok := levels[strings.ToLower(cfg.Level)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.Level)
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "terminal":
		handler = log.NewTerminalHandlerWithLevel(w, lvl, false)
	case "json":
		handler = log.JSONHandlerWithLevel(w, lvl)
	case "logfmt":
		handler = log.LogfmtHandlerWithLevel(w, lvl)
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, cfg.Format)
	}

	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, nil
}
