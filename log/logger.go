// Package log constructs the process logger.
//
// New returns a *zap.Logger, used by the runtime (shard workers,
// forwarders, bootstrap) and the CLI commands alike; Sugar() on it gives a
// zap.SugaredLogger where printf-style calls are wanted.
//
// Every entry carries the peer id so multi-process logs interleave legibly.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the process logger writing JSON to stderr.
// Level is one of debug, info, warn, error; empty means info.
func New(peerID uint16, level string) (*zap.Logger, error) {
	return NewWithWriter(peerID, level, os.Stderr)
}

// NewWithWriter creates a process logger writing to w. Used by tests.
func NewWithWriter(peerID uint16, level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)

	return zap.New(core).With(zap.Uint16("peer_id", peerID)), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("log: unknown level %q", level)
	}
}
