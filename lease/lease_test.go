package lease_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

func TestNewToken_Structure(t *testing.T) {
	tok, err := lease.NewToken("rt_1", queue.MustKey("Email"))
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}

	parts := strings.Split(tok.String(), ":*:")
	if len(parts) != 3 {
		t.Fatalf("token %q has %d segments, want 3", tok, len(parts))
	}
	if parts[0] != "rt_1" || parts[1] != "email" || parts[2] == "" {
		t.Errorf("unexpected segments %v", parts)
	}
	if tok.InstanceID() != "rt_1" || tok.Scope() != "email" {
		t.Errorf("accessors = (%q, %q)", tok.InstanceID(), tok.Scope())
	}
}

func TestNewToken_Unique(t *testing.T) {
	a, _ := lease.NewToken("rt", queue.Default)
	b, _ := lease.NewToken("rt", queue.Default)
	if a == b {
		t.Fatal("two tokens for the same scope should differ")
	}
}

func TestParseToken(t *testing.T) {
	tok, _ := lease.NewToken("rt", queue.Scheduler)
	parsed, err := lease.ParseToken(tok.String())
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed != tok {
		t.Fatalf("parsed %q, want %q", parsed, tok)
	}

	for _, bad := range []string{"", "a:*:b", "a:*::*:c", "a:*:b:*:c:*:d"} {
		if _, err := lease.ParseToken(bad); !errors.Is(err, atomizer.ErrInvalidLeaseToken) {
			t.Errorf("ParseToken(%q) error = %v, want ErrInvalidLeaseToken", bad, err)
		}
	}
}

func TestNewToken_Invalid(t *testing.T) {
	if _, err := lease.NewToken("", queue.Default); !errors.Is(err, atomizer.ErrInvalidLeaseToken) {
		t.Errorf("empty instance: error = %v", err)
	}
	if _, err := lease.NewToken("rt", queue.Key{}); !errors.Is(err, atomizer.ErrInvalidLeaseToken) {
		t.Errorf("zero scope: error = %v", err)
	}
}

func TestRegistry_MutualExclusion(t *testing.T) {
	r := lease.NewRegistry()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock("jobs")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}

	unlock := r.Lock("a")
	if _, ok := r.TryLock("a"); ok {
		t.Fatal("TryLock succeeded on a held key")
	}
	if u, ok := r.TryLock("b"); !ok {
		t.Fatal("TryLock failed on a free key")
	} else {
		u()
	}
	unlock()
}
