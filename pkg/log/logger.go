package log

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

type (
	Logger interface {
		Errorf(msg string, args ...any)
		Warnf(msg string, args ...any)
		Infof(msg string, args ...any)
		Debugf(msg string, args ...any)
	}

	simpleLogger struct{}
)

// SimpleLogger is a bare-bones implementation of the logging interface, e.g., used for testing.
// Debug messages are discarded.
func SimpleLogger() Logger {
	return &simpleLogger{}
}

func (*simpleLogger) Errorf(msg string, args ...any) {
	formattedMessage := fmt.Sprintf(msg, args...)
	log.Printf("[ERROR] %s", formattedMessage)
}

func (*simpleLogger) Warnf(msg string, args ...any) {
	formattedMessage := fmt.Sprintf(msg, args...)
	log.Printf("[WARNING] %s", formattedMessage)
}

func (*simpleLogger) Infof(msg string, args ...any) {
	formattedMessage := fmt.Sprintf(msg, args...)
	log.Printf("[INFO] %s", formattedMessage)
}

func (*simpleLogger) Debugf(string, ...any) {}

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses one of debug, info, warn or error
func ParseLevel(val string) (Level, error) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if l.String() == val {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", val)
}

type logfmtLogger struct {
	mu       sync.Mutex
	encoder  *logfmt.Encoder
	minLevel Level
	now      func() time.Time
}

// LogfmtLogger writes one logfmt record per message, e.g.,
//
//	ts=2023-05-04T10:00:00Z level=warn msg="dangling reference"
//
// Messages below minLevel are discarded. It is safe for concurrent use.
func LogfmtLogger(w io.Writer, minLevel Level) Logger {
	return &logfmtLogger{
		encoder:  logfmt.NewEncoder(w),
		minLevel: minLevel,
		now:      time.Now,
	}
}

func (l *logfmtLogger) Errorf(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

func (l *logfmtLogger) Warnf(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

func (l *logfmtLogger) Infof(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

func (l *logfmtLogger) Debugf(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

func (l *logfmtLogger) log(level Level, msg string, args ...any) {
	if level < l.minLevel {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// A logger has nowhere to report its own write failures
	_ = l.encoder.EncodeKeyvals(
		"ts", l.now().UTC().Format(time.RFC3339),
		"level", level.String(),
		"msg", fmt.Sprintf(msg, args...),
	)
	_ = l.encoder.EndRecord()
}
