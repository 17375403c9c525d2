// Package lease defines lease tokens and the per-key mutual exclusion
// registry used by in-process storage.
//
// A lease token identifies who holds a job or schedule. Its structure,
// {instance}:*:{scope}:*:{random}, lets storage queries and reclaim logic
// recover the owning runtime instance without a side table.
package lease

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/queue"
)

// Token identifies the holder of a lease. The zero Token holds nothing.
type Token struct {
	instanceID string
	scope      string
	random     string
}

// NewToken issues a token for instanceID scoped to scope, typically a
// queue key or queue.Scheduler.
func NewToken(instanceID string, scope queue.Key) (Token, error) {
	if err := validSegment("instance id", instanceID); err != nil {
		return Token{}, err
	}
	if scope.IsZero() {
		return Token{}, fmt.Errorf("%w: empty scope", atomizer.ErrInvalidLeaseToken)
	}
	return Token{
		instanceID: instanceID,
		scope:      scope.String(),
		random:     strings.ReplaceAll(uuid.NewString(), "-", ""),
	}, nil
}

// ParseToken parses the string form of a token.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, queue.Separator)
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: %q does not have three segments", atomizer.ErrInvalidLeaseToken, s)
	}
	for i, name := range []string{"instance id", "scope", "random id"} {
		if err := validSegment(name, parts[i]); err != nil {
			return Token{}, err
		}
	}
	return Token{instanceID: parts[0], scope: parts[1], random: parts[2]}, nil
}

func validSegment(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: empty %s", atomizer.ErrInvalidLeaseToken, name)
	}
	if strings.Contains(v, queue.Separator) {
		return fmt.Errorf("%w: %s %q contains %q", atomizer.ErrInvalidLeaseToken, name, v, queue.Separator)
	}
	return nil
}

// InstanceID returns the runtime instance that issued the token.
func (t Token) InstanceID() string { return t.instanceID }

// Scope returns the queue or scheduler key the token was issued for.
func (t Token) Scope() string { return t.scope }

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool { return t.random == "" }

// String returns {instance}:*:{scope}:*:{random}.
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	return t.instanceID + queue.Separator + t.scope + queue.Separator + t.random
}
