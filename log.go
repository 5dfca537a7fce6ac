package memtier

import (
	"sync/atomic"

	"github.com/bnclabs/golog"
)

// Logger is the interface the allocator logs diagnostics through.
// Applications may supply their own implementation; memtier falls
// back to a golog-backed default.
type Logger interface {
	SetLogLevel(string)
	Fatalf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Verbosef(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Tracef(format string, v ...interface{})
}

type goLogger struct{}

func (goLogger) SetLogLevel(level string)                        { golog.SetLogLevel(level) }
func (goLogger) Fatalf(format string, v ...interface{})          { golog.Fatalf(format, v...) }
func (goLogger) Errorf(format string, v ...interface{})          { golog.Errorf(format, v...) }
func (goLogger) Warnf(format string, v ...interface{})           { golog.Warnf(format, v...) }
func (goLogger) Infof(format string, v ...interface{})           { golog.Infof(format, v...) }
func (goLogger) Verbosef(format string, v ...interface{})        { golog.Verbosef(format, v...) }
func (goLogger) Debugf(format string, v ...interface{})          { golog.Debugf(format, v...) }
func (goLogger) Tracef(format string, v ...interface{})          { golog.Tracef(format, v...) }

var log Logger = goLogger{}

// SetLogger lets an application integrate memtier's diagnostics with
// its own logging. Passing nil restores the golog-backed default.
func SetLogger(logger Logger) {
	if logger == nil {
		log = goLogger{}
		return
	}
	log = logger
}

// logok gates the debug-path helpers below so that CorruptedMagic and
// wild-pointer diagnostics cost nothing on the hot path when logging
// is disabled. Mirrors llrb/log.go's atomic enable flag.
var logok = int64(0)

// EnableDiagnostics turns on the debug-path logging helpers
// (debugf/warnf/errorf below). Disabled by default.
func EnableDiagnostics(enable bool) {
	if enable {
		atomic.StoreInt64(&logok, 1)
	} else {
		atomic.StoreInt64(&logok, 0)
	}
}

func debugf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Debugf(format, v...)
	}
}

func warnf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Warnf(format, v...)
	}
}

func errorf(format string, v ...interface{}) {
	if atomic.LoadInt64(&logok) > 0 {
		log.Errorf(format, v...)
	}
}
