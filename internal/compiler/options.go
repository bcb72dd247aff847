package compiler

import (
	"fmt"
	"strings"
)

// DuplicatePolicy selects how a redeclaration in the same scope is handled.
type DuplicatePolicy int

const (
	// DuplicateReject reports an error; uses keep the existing slot.
	DuplicateReject DuplicatePolicy = iota
	// DuplicateShadow warns and allocates a new slot that later uses see.
	DuplicateShadow
	// DuplicateReuse silently reuses the existing slot.
	DuplicateReuse
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateReject:
		return "reject"
	case DuplicateShadow:
		return "shadow"
	case DuplicateReuse:
		return "reuse"
	default:
		return fmt.Sprintf("duplicate(%d)", int(p))
	}
}

// ParseDuplicatePolicy maps a config spelling to a policy. Empty selects the default.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return DuplicateReject, nil
	case "shadow":
		return DuplicateShadow, nil
	case "reuse":
		return DuplicateReuse, nil
	default:
		return DuplicateReject, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// UnresolvedPolicy selects how an identifier with no declaration is handled.
type UnresolvedPolicy int

const (
	// UnresolvedFail reports an error and loads null as a placeholder.
	UnresolvedFail UnresolvedPolicy = iota
	// UnresolvedWarn reports a warning and loads null.
	UnresolvedWarn
)

func (p UnresolvedPolicy) String() string {
	switch p {
	case UnresolvedFail:
		return "fail"
	case UnresolvedWarn:
		return "warn"
	default:
		return fmt.Sprintf("unresolved(%d)", int(p))
	}
}

// ParseUnresolvedPolicy maps a config spelling to a policy. Empty selects the default.
func ParseUnresolvedPolicy(s string) (UnresolvedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "error":
		return UnresolvedFail, nil
	case "warn", "warning":
		return UnresolvedWarn, nil
	default:
		return UnresolvedFail, fmt.Errorf("unknown unresolved policy %q", s)
	}
}

// Options controls a single compilation.
type Options struct {
	// Name labels the program; Source labels prototypes and diagnostics.
	Name   string
	Source string

	Duplicate  DuplicatePolicy
	Unresolved UnresolvedPolicy

	// Predeclared globals occupy the first global slots in order. Hosts use
	// this to make natives visible without extern declarations.
	Predeclared []string
}
