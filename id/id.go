// Package id mints and parses the identifiers stored on jobs, job errors
// and schedules. Every identifier is a TypeID: a kind, an underscore and a
// base32 UUIDv7 suffix, so identifiers of one kind sort by creation time.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Kind is the record type carried in the leading part of an identifier.
type Kind string

const (
	KindJob      Kind = "job"
	KindJobError Kind = "jerr"
	KindSchedule Kind = "sched"
	KindRuntime  Kind = "rt"
)

var errEmpty = errors.New("id: empty identifier")

// ID holds the canonical text of a TypeID. The zero value is Nil and is
// stored as NULL.
//
//nolint:recvcheck // UnmarshalText and Scan mutate.
type ID struct {
	text string
}

// Nil is the absent identifier.
var Nil ID

// New mints an identifier of kind k. An invalid kind is a programming
// error and panics.
func (k Kind) New() ID {
	tid, err := typeid.Generate(string(k))
	if err != nil {
		panic("id: cannot mint kind " + string(k) + ": " + err.Error())
	}
	return ID{text: tid.String()}
}

// Parse parses s and rejects identifiers of any other kind.
func (k Kind) Parse(s string) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := v.Kind(); got != k {
		return Nil, fmt.Errorf("id: %q has kind %q, want %q", s, got, k)
	}
	return v, nil
}

// Parse accepts any well-formed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errEmpty
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: %q: %w", s, err)
	}
	return ID{text: tid.String()}, nil
}

func NewJobID() ID      { return KindJob.New() }
func NewJobErrorID() ID { return KindJobError.New() }
func NewScheduleID() ID { return KindSchedule.New() }

// NewRuntimeID names an engine instance when none is configured.
func NewRuntimeID() ID { return KindRuntime.New() }

func ParseJobID(s string) (ID, error)      { return KindJob.Parse(s) }
func ParseScheduleID(s string) (ID, error) { return KindSchedule.Parse(s) }

func (v ID) String() string { return v.text }

func (v ID) IsNil() bool { return v.text == "" }

// Kind reports the record type, or "" for Nil.
func (v ID) Kind() Kind {
	i := strings.LastIndexByte(v.text, '_')
	if i < 0 {
		return ""
	}
	return Kind(v.text[:i])
}

func (v ID) MarshalText() ([]byte, error) {
	return []byte(v.text), nil
}

func (v *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*v = Nil
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value stores Nil as NULL.
func (v ID) Value() (driver.Value, error) {
	if v.IsNil() {
		return nil, nil //nolint:nilnil // NULL
	}
	return v.text, nil
}

func (v *ID) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = Nil
		return nil
	case string:
		return v.UnmarshalText([]byte(s))
	case []byte:
		return v.UnmarshalText(s)
	}
	return fmt.Errorf("id: unsupported scan source %T", src)
}
