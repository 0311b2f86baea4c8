package trial

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"NEW":            StatusNew,
		"trial-assigned": StatusTrialAssigned,
		" refused ":      StatusRefused,
		"Signed":         StatusSigned,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Error("archived must not parse as a status")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	d := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Request{ID: 1, ScheduledDate: &d}
	c := r.Clone()
	*c.ScheduledDate = d.AddDate(0, 0, 1)
	if !r.ScheduledDate.Equal(d) {
		t.Fatalf("clone aliased ScheduledDate")
	}
}

func TestAgeReference(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -40)
	updated := now.AddDate(0, 0, -10)

	if got := (Request{CreatedAt: created, UpdatedAt: &updated}).AgeReference(now); !got.Equal(updated) {
		t.Errorf("want updated_at, got %v", got)
	}
	if got := (Request{CreatedAt: created}).AgeReference(now); !got.Equal(created) {
		t.Errorf("want created_at, got %v", got)
	}
	if got := (Request{}).AgeReference(now); !got.Equal(now) {
		t.Errorf("want now, got %v", got)
	}
}

func TestFieldsPatch(t *testing.T) {
	if !(FieldsPatch{}).Empty() {
		t.Fatal("zero patch must be empty")
	}
	age := 11
	p := FieldsPatch{ChildAge: &age}
	r := Request{ChildAge: 9, ChildName: "Leo"}
	p.ApplyTo(&r)
	if r.ChildAge != 11 || r.ChildName != "Leo" {
		t.Fatalf("ApplyTo = %+v", r)
	}
}
