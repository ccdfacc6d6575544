// Package nlog is DART-Go's leveled logger, grounded on aistore's
// cmn/nlog package (nlog.Infof/nlog.Errorln/nlog.Infoln as called from
// xact/xs/tcb.go) and on the level set named by spec.md §6:
// DART_LOG_LEVEL ∈ {ERROR, WARN, INFO, DEBUG, TRACE}.
package nlog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError, true
	case "WARN":
		return LevelWarn, true
	case "INFO":
		return LevelInfo, true
	case "DEBUG":
		return LevelDebug, true
	case "TRACE":
		return LevelTrace, true
	default:
		return LevelWarn, false
	}
}

var (
	current  atomic.Int32
	initOnce sync.Once
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	current.Store(int32(LevelWarn))
	if v, ok := os.LookupEnv("DART_LOG_LEVEL"); ok {
		if lvl, ok := ParseLevel(v); ok {
			current.Store(int32(lvl))
		}
	}
}

// SetLevel overrides the level derived from DART_LOG_LEVEL; used by
// cmn.Load to apply the level from its config file and environment.
func SetLevel(l Level) { current.Store(int32(l)) }

func CurrentLevel() Level { return Level(current.Load()) }

func enabled(l Level) bool { return l <= CurrentLevel() }

func logf(l Level, format string, args ...interface{}) {
	if !enabled(l) {
		return
	}
	std.Printf("[%s] %s", l, fmt.Sprintf(format, args...))
}

func logln(l Level, args ...interface{}) {
	if !enabled(l) {
		return
	}
	std.Printf("[%s] %s", l, fmt.Sprintln(args...))
}

func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }
func Errorln(args ...interface{})               { logln(LevelError, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Warnln(args ...interface{})                { logln(LevelWarn, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Infoln(args ...interface{})                { logln(LevelInfo, args...) }
func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Debugln(args ...interface{})               { logln(LevelDebug, args...) }
func Tracef(format string, args ...interface{}) { logf(LevelTrace, format, args...) }
func Traceln(args ...interface{})               { logln(LevelTrace, args...) }

// FastV reports whether tracing-grade logging is enabled, so call sites
// can skip building an expensive log line outright — mirrors aistore's
// glog.FastV(4, glog.SmoduleReb) idiom seen in reb/resilver.go.
func FastV(l Level) bool { return enabled(l) }
