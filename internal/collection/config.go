package collection

import (
	"github.com/looplj/dochooks/internal/notifier"
)

type Config struct {
	// InstanceID identifies this process in provenance metadata. When empty, one
	// random id is generated per process.
	InstanceID string `conf:"instance_id" yaml:"instance_id" json:"instance_id"`

	// Verbose emits diagnostic tracing for every intercepted operation.
	Verbose bool `conf:"verbose" yaml:"verbose" json:"verbose"`

	// BeforeHookErrors is one of propagate, veto, ignore.
	BeforeHookErrors string `conf:"before_hook_errors" yaml:"before_hook_errors" json:"before_hook_errors"`

	Notifier notifier.Config `conf:"notifier" yaml:"notifier" json:"notifier"`
}
