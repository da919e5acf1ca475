package provenance

import (
	"fmt"

	"github.com/looplj/dochooks/internal/docstore"
)

type Reason string

const (
	ReasonMissing   Reason = "no meta"
	ReasonMalformed Reason = "malformed meta"
	ReasonInstance  Reason = "uuid does not match"
	ReasonDirect    Reason = "is direct"
	ReasonRemoved   Reason = "is removed"
	// ReasonNotRemoval marks a removal event whose tag was not written by a
	// hooked remove.
	ReasonNotRemoval Reason = "not a removal tag"
)

// RejectedError explains why a document may not trigger after-hooks.
type RejectedError struct {
	Reason     Reason
	DocumentID string
	Err        error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provenance rejected %q: %s: %v", e.DocumentID, e.Reason, e.Err)
	}

	return fmt.Sprintf("provenance rejected %q: %s", e.DocumentID, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Validator gates after-hook fan-out to changes this instance made through its
// hook-governed path.
type Validator struct {
	instanceID string
}

func NewValidator(instanceID string) *Validator {
	return &Validator{instanceID: instanceID}
}

// Validate returns the decoded metadata of doc, or a *RejectedError. It has no side
// effects, so repeated calls with the same input agree.
func (v *Validator) Validate(doc docstore.Document, rejectRemoved bool) (Meta, error) {
	m, ok, err := FromDocument(doc)

	switch {
	case err != nil:
		return Meta{}, &RejectedError{Reason: ReasonMalformed, DocumentID: doc.ID(), Err: err}
	case !ok:
		return Meta{}, &RejectedError{Reason: ReasonMissing, DocumentID: doc.ID()}
	case m.InstanceID != v.instanceID:
		return m, &RejectedError{Reason: ReasonInstance, DocumentID: doc.ID()}
	case m.Direct:
		return m, &RejectedError{Reason: ReasonDirect, DocumentID: doc.ID()}
	case rejectRemoved && m.Removed:
		return m, &RejectedError{Reason: ReasonRemoved, DocumentID: doc.ID()}
	}

	return m, nil
}
