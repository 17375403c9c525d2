package job

import (
	"fmt"
	"strings"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/queue"
)

// Key is the unique human name of a recurring schedule. Jobs spawned by a
// schedule carry it as a back-reference. Keys are case-sensitive.
type Key struct {
	value string
}

// NewKey validates a job key.
func NewKey(name string) (Key, error) {
	v := strings.TrimSpace(name)
	if v == "" {
		return Key{}, fmt.Errorf("%w: empty key", atomizer.ErrInvalidJobKey)
	}
	if strings.Contains(v, queue.Separator) {
		return Key{}, fmt.Errorf("%w: %q contains %q", atomizer.ErrInvalidJobKey, name, queue.Separator)
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

// String returns the key.
func (k Key) String() string { return k.value }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.value == "" }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero Key.
func (k *Key) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := NewKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
