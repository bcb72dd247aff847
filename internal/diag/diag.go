package diag

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Level is the severity of a diagnostic.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Location points into a source file. Line and Column are 1-based.
type Location struct {
	Source string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Source == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.Source, l.Line, l.Column)
}

// Diagnostic is one message reported by a compiler component.
type Diagnostic struct {
	Level     Level
	Component string
	Location  *Location
	Message   string
}

func (d Diagnostic) Error() string {
	var sb strings.Builder
	if d.Location != nil {
		sb.WriteString(d.Location.String())
		sb.WriteString(": ")
	}
	sb.WriteString(d.Level.String())
	if d.Component != "" {
		sb.WriteString(" [")
		sb.WriteString(d.Component)
		sb.WriteString("]")
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

// Sink receives diagnostics. Reporting never halts the caller.
type Sink interface {
	Report(Diagnostic)
}

// Collector accumulates diagnostics and optionally forwards them.
type Collector struct {
	items []Diagnostic
	next  Sink
}

// NewCollector creates a collector forwarding to next (which may be nil).
func NewCollector(next Sink) *Collector {
	return &Collector{next: next}
}

func (c *Collector) Report(d Diagnostic) {
	c.items = append(c.items, d)
	if c.next != nil {
		c.next.Report(d)
	}
}

// Reportf is a convenience wrapper around Report.
func (c *Collector) Reportf(level Level, component string, loc *Location, format string, args ...any) {
	c.Report(Diagnostic{
		Level:     level,
		Component: component,
		Location:  loc,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Diagnostics returns every diagnostic in report order.
func (c *Collector) Diagnostics() []Diagnostic {
	if c == nil {
		return nil
	}
	return c.items
}

// HasErrors reports whether any error-level diagnostic was collected.
func (c *Collector) HasErrors() bool {
	if c == nil {
		return false
	}
	for _, d := range c.items {
		if d.Level == Error {
			return true
		}
	}
	return false
}

// Counts returns the number of errors and warnings.
func (c *Collector) Counts() (errors, warnings int) {
	if c == nil {
		return 0, 0
	}
	for _, d := range c.items {
		switch d.Level {
		case Error:
			errors++
		case Warning:
			warnings++
		}
	}
	return errors, warnings
}

// Err combines every error-level diagnostic into one error, or returns nil.
func (c *Collector) Err() error {
	if c == nil {
		return nil
	}
	var err error
	for _, d := range c.items {
		if d.Level == Error {
			err = multierr.Append(err, d)
		}
	}
	return err
}

// LogSink writes diagnostics to a zerolog logger.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Report(d Diagnostic) {
	var ev *zerolog.Event
	switch d.Level {
	case Error:
		ev = s.Logger.Error()
	case Warning:
		ev = s.Logger.Warn()
	default:
		ev = s.Logger.Info()
	}
	ev = ev.Str("component", d.Component)
	if d.Location != nil {
		ev = ev.Str("source", d.Location.Source).Int("line", d.Location.Line).Int("column", d.Location.Column)
	}
	ev.Msg(d.Message)
}
