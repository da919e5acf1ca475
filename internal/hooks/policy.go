package hooks

import (
	"fmt"
	"strings"
)

// ErrorPolicy decides what a failing before-hook does to its operation.
type ErrorPolicy string

const (
	// PolicyPropagate aborts the operation and returns a *HookError.
	PolicyPropagate ErrorPolicy = "propagate"
	// PolicyVeto treats the failure as a veto.
	PolicyVeto ErrorPolicy = "veto"
	// PolicyIgnore logs the failure and continues with the next hook.
	PolicyIgnore ErrorPolicy = "ignore"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPropagate, nil
	case PolicyPropagate, PolicyVeto, PolicyIgnore:
		return p, nil
	default:
		return "", fmt.Errorf("unknown before hook error policy %q", s)
	}
}

// HookError reports a before-hook that failed or panicked.
type HookError struct {
	Collection string
	Operation  string
	Index      int
	Err        error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s before hook #%d on %s: %v", e.Operation, e.Index, e.Collection, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a hook.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hook panicked: %v", e.Value)
}
