package job

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mnbuhl/atomizer"
)

// HandlerFunc is a type-erased job handler. It receives the raw payload
// and the serializer used to decode it. Typed handlers are converted to a
// HandlerFunc at registration time by [Handle].
type HandlerFunc func(ctx context.Context, payload string, ser Serializer) error

// Registry maps payload type tags to handlers. It is safe for concurrent
// use, though handlers are normally registered once at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn as the handler for payload type tag. The payload is
// decoded into T before fn runs; a payload that decodes to no value is
// rejected with atomizer.ErrEmptyPayload. Registering the same tag again
// replaces the previous handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Handle[T any](r *Registry, tag string, fn func(ctx context.Context, payload T) error) {
	handler := func(ctx context.Context, payload string, ser Serializer) error {
		if isEmptyPayload(payload) {
			return fmt.Errorf("%w: %s", atomizer.ErrEmptyPayload, tag)
		}
		var p T
		if err := ser.Deserialize(payload, &p); err != nil {
			return fmt.Errorf("deserialize payload for %q: %w", tag, err)
		}
		return fn(ctx, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = handler
}

// Resolve returns the handler for tag.
func (r *Registry) Resolve(tag string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Has reports whether a handler is registered for tag.
func (r *Registry) Has(tag string) bool {
	_, ok := r.Resolve(tag)
	return ok
}

// Types returns all registered tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// TypeOf returns the default payload type tag for T: its package path
// and name, e.g. "example.com/app/jobs.SendEmail". Pointer types resolve
// to their element type.
func TypeOf[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

func isEmptyPayload(payload string) bool {
	p := strings.TrimSpace(payload)
	return p == "" || p == "null"
}
