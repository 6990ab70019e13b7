// Package notify implements per-device notification registries, the
// system-wide severity rollup and delivery to alert sinks.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks notifications. Higher is worse.
type Severity int

const (
	// OK is reported by an aggregate with nothing active. It is never the
	// severity of a notification.
	OK     Severity = -1
	Info   Severity = 0
	Manual Severity = 10
	Warn   Severity = 20
	Error  Severity = 30
)

func (s Severity) String() string {
	switch s {
	case OK:
		return "OK"
	case Info:
		return "INFO"
	case Manual:
		return "MANUAL"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("SEVERITY(%d)", int(s))
}

// ParseSeverity converts a severity name back to its value.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(s) {
	case "OK":
		return OK, nil
	case "INFO":
		return Info, nil
	case "MANUAL":
		return Manual, nil
	case "WARN", "WARNING":
		return Warn, nil
	case "ERROR":
		return Error, nil
	}
	return Info, fmt.Errorf("unknown severity %q", s)
}

// Kind describes a type of notification a device can raise.
type Kind struct {
	Name     string
	Severity Severity
	// Template is a fmt format applied to the Raise arguments.
	Template string
	// Single kinds are suppressed while already active.
	Single bool
	// AutoClear kinds are delivered but never kept active.
	AutoClear bool
	// Clears names the kinds removed before this one is raised.
	Clears []string
}

// Notification is a delivered instance of a Kind.
type Notification struct {
	ID       string
	Device   string
	Kind     string
	Severity Severity
	Message  string
	Time     time.Time
}

// Deliverer receives every notification a registry does not suppress.
type Deliverer interface {
	Deliver(n Notification)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(n Notification)

func (f DelivererFunc) Deliver(n Notification) { f(n) }

// Max returns the worse of two severities.
func Max(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}
