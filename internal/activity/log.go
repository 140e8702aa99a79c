// Package activity keeps a bounded, timestamped log of user-visible events
// such as fetch attempts, agent ticks and analysis runs.
package activity

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxLines bounds the log when no size is given.
const DefaultMaxLines = 500

// Log is a fixed-size ring of formatted lines. Safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
	now   func() time.Time
	log   *zap.Logger
}

// New creates a Log holding at most maxLines lines.
func New(maxLines int) *Log {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Log{
		lines: make([]string, maxLines),
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "activity")),
	}
}

// Add appends "[timestamp] msg" and mirrors msg to the info log.
func (l *Log) Add(msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	line := fmt.Sprintf("[%s] %s", l.now().UTC().Format(time.RFC3339), msg)
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	l.log.Info(msg)
}

// Addf formats according to format and calls Add.
func (l *Log) Addf(format string, args ...any) {
	l.Add(fmt.Sprintf(format, args...))
}

// Lines returns the retained lines, oldest first.
func (l *Log) Lines() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]string(nil), l.lines[:l.next]...)
	}
	out := make([]string, 0, len(l.lines))
	out = append(out, l.lines[l.next:]...)
	return append(out, l.lines[:l.next]...)
}

// Len returns the number of retained lines.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.lines)
	}
	return l.next
}

// Reset drops every line.
func (l *Log) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.lines)
	l.next = 0
	l.full = false
}
