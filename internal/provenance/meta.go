// Package provenance stamps mutations with metadata identifying the process instance
// and acting identity that produced them, and decides whether an observed change may
// fan out to after-hooks.
package provenance

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/looplj/dochooks/internal/docstore"
)

// Field is the reserved document field provenance is stored under.
const Field = "hookMeta"

// Dotted paths for selectors over provenance.
const (
	PathTimestamp  = Field + ".timestamp"
	PathInstanceID = Field + ".uuid"
	PathDirect     = Field + ".direct"
	PathOperation  = Field + ".op"
	PathRemoved    = Field + ".removed"
	// PathCreated is written only through $setOnInsert by hooked upserts.
	PathCreated = Field + ".created"
)

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpUpsert Operation = "upsert"
	OpRemove Operation = "remove"
)

// Mutations lists the operations that carry provenance, in polling order.
var Mutations = []Operation{OpInsert, OpUpdate, OpUpsert, OpRemove}

type Meta struct {
	Timestamp      time.Time `mapstructure:"timestamp" json:"timestamp"`
	ActingIdentity *string   `mapstructure:"userId" json:"userId,omitempty"`
	InstanceID     string    `mapstructure:"uuid" json:"uuid"`
	Direct         bool      `mapstructure:"direct" json:"direct"`
	Operation      Operation `mapstructure:"op" json:"op"`
	Removed        bool      `mapstructure:"removed" json:"removed,omitempty"`
	// Created is the tag timestamp of the upsert that inserted the document.
	Created *time.Time `mapstructure:"created" json:"created,omitempty"`
}

// UpsertInserted reports whether the upsert m describes is the one that inserted
// the document.
func (m Meta) UpsertInserted() bool {
	return m.Operation == OpUpsert && m.Created != nil && m.Created.Equal(m.Timestamp)
}

// ToMap renders m the way it is embedded in documents.
func (m Meta) ToMap() map[string]any {
	out := map[string]any{
		"timestamp": m.Timestamp,
		"uuid":      m.InstanceID,
		"direct":    m.Direct,
		"op":        string(m.Operation),
	}

	if m.ActingIdentity != nil {
		out["userId"] = *m.ActingIdentity
	}

	if m.Removed {
		out["removed"] = true
	}

	if m.Created != nil {
		out["created"] = *m.Created
	}

	return out
}

// TagUpsert returns mod carrying m. Operator modifiers get m as per-field $set
// paths, stale optional fields unset, and hookMeta.created in $setOnInsert, so the
// stored document tells whether this upsert inserted it. A replacement carries the
// whole field and leaves that undecided.
func TagUpsert(mod docstore.Modifier, m Meta) docstore.Modifier {
	if len(mod) > 0 && mod.IsReplacement() {
		return mod.WithSet(Field, m.ToMap())
	}

	fields := m.ToMap()
	delete(fields, "created")

	out := mod
	for k, v := range fields {
		out = out.WithSet(Field+"."+k, v)
	}

	for _, k := range []string{"userId", "removed"} {
		if _, ok := fields[k]; !ok {
			out = out.WithUnset(Field + "." + k)
		}
	}

	return out.WithSetOnInsert(PathCreated, m.Timestamp)
}

// Attach returns a copy of doc carrying m.
func Attach(doc docstore.Document, m Meta) docstore.Document {
	out := doc.Clone()
	if out == nil {
		out = docstore.Document{}
	}

	out[Field] = m.ToMap()

	return out
}

// FromDocument extracts the provenance of doc. ok is false when the field is
// absent; err reports a present but undecodable field.
func FromDocument(doc docstore.Document) (m Meta, ok bool, err error) {
	raw, exists := doc[Field]
	if !exists || raw == nil {
		return Meta{}, false, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeTime,
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Meta{}, true, err
	}

	if err := dec.Decode(raw); err != nil {
		return Meta{}, true, fmt.Errorf("decode %s: %w", Field, err)
	}

	return m, true, nil
}

var timeType = reflect.TypeOf(time.Time{})

// decodeTime accepts time.Time values (memory, msgpack, mongo after normalization)
// and RFC 3339 strings (JSON-backed stores).
func decodeTime(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}

		return *v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	default:
		return data, nil
	}
}
