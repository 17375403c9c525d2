package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mnbuhl/atomizer/id"
)

func TestKinds(t *testing.T) {
	t.Parallel()

	cases := map[id.Kind]func() id.ID{
		id.KindJob:      id.NewJobID,
		id.KindJobError: id.NewJobErrorID,
		id.KindSchedule: id.NewScheduleID,
		id.KindRuntime:  id.NewRuntimeID,
	}
	for kind, mint := range cases {
		v := mint()
		if v.Kind() != kind {
			t.Errorf("%s: Kind() = %q", kind, v.Kind())
		}
		if !strings.HasPrefix(v.String(), string(kind)+"_") {
			t.Errorf("%s: unexpected text %q", kind, v)
		}
	}
}

func TestKindParse(t *testing.T) {
	t.Parallel()

	job := id.NewJobID()
	got, err := id.ParseJobID(job.String())
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if got != job {
		t.Fatalf("parsed %q, want %q", got, job)
	}

	if _, err := id.ParseScheduleID(job.String()); err == nil {
		t.Error("ParseScheduleID accepted a job id")
	}
	if _, err := id.ParseJobID(id.NewScheduleID().String()); err == nil {
		t.Error("ParseJobID accepted a schedule id")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "job_", "job_not-base32!"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded", s)
		}
	}
}

func TestNil(t *testing.T) {
	t.Parallel()

	var v id.ID
	if !v.IsNil() || v != id.Nil {
		t.Fatal("zero value is not Nil")
	}
	if v.String() != "" || v.Kind() != "" {
		t.Errorf("Nil renders as %q kind %q", v.String(), v.Kind())
	}
}

func TestSQLRoundTrip(t *testing.T) {
	t.Parallel()

	want := id.NewScheduleID()
	val, err := want.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var got id.ID
	if err := got.Scan([]byte(val.(string))); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got != want {
		t.Errorf("scanned %q, want %q", got, want)
	}

	if val, _ := id.Nil.Value(); val != nil {
		t.Errorf("Nil.Value() = %v, want NULL", val)
	}
	got = id.NewJobID()
	if err := got.Scan(nil); err != nil || !got.IsNil() {
		t.Errorf("Scan(nil) = %v, IsNil %v", err, got.IsNil())
	}
	if err := got.Scan(42); err == nil {
		t.Error("Scan(int) succeeded")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	type rec struct {
		ID     id.ID `json:"id"`
		Parent id.ID `json:"parent"`
	}
	in := rec{ID: id.NewJobID()}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out rec
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestUnique(t *testing.T) {
	t.Parallel()

	prev := id.NewJobID()
	for range 100 {
		next := id.NewJobID()
		if next == prev {
			t.Fatalf("duplicate id %q", next)
		}
		prev = next
	}
}
