package queue

import (
	"fmt"
	"strings"

	"github.com/mnbuhl/atomizer"
)

// Separator delimits the segments of a lease token. Queue keys may not
// contain it.
const Separator = ":*:"

var (
	// Default is the queue jobs are enqueued to when none is given.
	Default = MustKey("default")

	// Scheduler is the virtual queue key that scopes the scheduler's
	// lease token.
	Scheduler = MustKey("__scheduler__")
)

// Key identifies a queue. Keys are case-insensitive; the canonical form
// is lower case, so == and map lookups behave as expected.
type Key struct {
	value string
}

// NewKey validates and normalises a queue name.
func NewKey(name string) (Key, error) {
	v := strings.ToLower(strings.TrimSpace(name))
	if v == "" {
		return Key{}, fmt.Errorf("%w: empty name", atomizer.ErrInvalidQueueKey)
	}
	if strings.Contains(v, Separator) {
		return Key{}, fmt.Errorf("%w: %q contains %q", atomizer.ErrInvalidQueueKey, name, Separator)
	}
	return Key{value: v}, nil
}

// MustKey is like NewKey but panics on invalid input.
func MustKey(name string) Key {
	k, err := NewKey(name)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the canonical queue name.
func (k Key) String() string { return k.value }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.value == "" }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(data []byte) error {
	parsed, err := NewKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
