// SPDX-License-Identifier: Apache-2.0

package rtcsrv

import (
	"context"
	"fmt"

	"github.com/pion/logging"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// slogLeveledLogger bridges pion's per-scope logging.LeveledLogger to the
// context-carried slog.Logger the rest of this codebase uses, so pion's
// internal ICE/SCTP/DTLS chatter lands in the same structured log stream.
type slogLeveledLogger struct {
	ctx   context.Context
	scope string
}

func (l slogLeveledLogger) Trace(msg string) { l.log("trace", msg) }
func (l slogLeveledLogger) Debug(msg string) { l.log("debug", msg) }
func (l slogLeveledLogger) Info(msg string)  { l.log("info", msg) }
func (l slogLeveledLogger) Warn(msg string)  { l.log("warn", msg) }
func (l slogLeveledLogger) Error(msg string) { l.log("error", msg) }

func (l slogLeveledLogger) Tracef(format string, args ...interface{}) { l.log("trace", fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Debugf(format string, args ...interface{}) { l.log("debug", fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Infof(format string, args ...interface{})  { l.log("info", fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Warnf(format string, args ...interface{})  { l.log("warn", fmt.Sprintf(format, args...)) }
func (l slogLeveledLogger) Errorf(format string, args ...interface{}) { l.log("error", fmt.Sprintf(format, args...)) }

func (l slogLeveledLogger) log(level, msg string) {
	log := logger.FromContext(l.ctx)
	switch level {
	case "trace", "debug":
		log.DebugContext(l.ctx, msg, "pion_scope", l.scope)
	case "warn":
		log.WarnContext(l.ctx, msg, "pion_scope", l.scope)
	case "error":
		log.ErrorContext(l.ctx, msg, "pion_scope", l.scope)
	default:
		log.InfoContext(l.ctx, msg, "pion_scope", l.scope)
	}
}

// loggerFactory implements pion/logging.LoggerFactory against a fixed
// context, handed to the root context once at startup (pion scopes its
// loggers per-subsystem, not per-request, so there is no per-call context to
// thread through).
type loggerFactory struct {
	ctx context.Context
}

func newLoggerFactory(ctx context.Context) logging.LoggerFactory {
	return loggerFactory{ctx: ctx}
}

func (f loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveledLogger{ctx: f.ctx, scope: scope}
}
