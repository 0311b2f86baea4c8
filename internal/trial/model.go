// internal/trial/model.go
//
// Trial-request row model and funnel status enum.
//
// Context
// -------
// A trial request is a prospective student's inquiry.  It is created by an
// unauthenticated public submission with status NEW and then moved through
// the funnel by staff:
//
//	NEW → TRIAL_ASSIGNED → REFUSED | SIGNED
//
// Archival is not a status.  It is a marker sub-state carried inside Notes
// (see internal/marker) and applies to REFUSED and SIGNED rows only.
//
// Schema reference
//
//	CREATE TABLE trial_request (
//	    id              BIGINT PRIMARY KEY AUTO_INCREMENT,
//	    status          VARCHAR(32)  NOT NULL DEFAULT 'NEW',
//	    scheduled_date  DATETIME     NULL,
//	    desired_date    DATETIME     NOT NULL,
//	    notes           TEXT         NOT NULL,
//	    child_name      VARCHAR(128) NOT NULL,
//	    child_age       INT          NOT NULL,
//	    parent_name     VARCHAR(128) NOT NULL,
//	    parent_phone    VARCHAR(32)  NOT NULL,
//	    section_id      BIGINT       NOT NULL,
//	    branch_id       BIGINT       NOT NULL,
//	    source_city     VARCHAR(128) NOT NULL DEFAULT '',
//	    source_country  VARCHAR(8)   NOT NULL DEFAULT '',
//	    created_at      DATETIME     NOT NULL,
//	    updated_at      DATETIME     NULL
//	);
//
// Notes
// -----
//   - Nullable timestamps are pointers; callers must nil-check before use.
//   - DesiredDate is never mutated after creation.  Once ScheduledDate is
//     set it simply stops mattering.
package trial

import (
	"fmt"
	"strings"
	"time"
)

// Status is the primary lifecycle state of a request.
type Status string

const (
	StatusNew           Status = "NEW"
	StatusTrialAssigned Status = "TRIAL_ASSIGNED"
	StatusRefused       Status = "REFUSED"
	StatusSigned        Status = "SIGNED"
)

// Statuses lists the funnel columns in display order.
var Statuses = []Status{StatusNew, StatusTrialAssigned, StatusRefused, StatusSigned}

// Valid reports whether s is one of the four funnel statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusTrialAssigned, StatusRefused, StatusSigned:
		return true
	}
	return false
}

// Terminal reports whether s closes the funnel.  Only terminal requests may
// be archived.
func (s Status) Terminal() bool {
	return s == StatusRefused || s == StatusSigned
}

// ParseStatus accepts the canonical upper-case names and their lower-case
// or dashed spellings ("trial-assigned").
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Request mirrors one row in the `trial_request` table.
type Request struct {
	ID            int64      `db:"id"             json:"id"`
	Status        Status     `db:"status"         json:"status"`
	ScheduledDate *time.Time `db:"scheduled_date" json:"scheduledDate,omitempty"`
	DesiredDate   time.Time  `db:"desired_date"   json:"desiredDate"`
	Notes         string     `db:"notes"          json:"notes"`
	ChildName     string     `db:"child_name"     json:"childName"`
	ChildAge      int        `db:"child_age"      json:"childAge"`
	ParentName    string     `db:"parent_name"    json:"parentName"`
	ParentPhone   string     `db:"parent_phone"   json:"parentPhone"`
	SectionID     int64      `db:"section_id"     json:"sectionId"`
	BranchID      int64      `db:"branch_id"      json:"branchId"`
	SourceCity    string     `db:"source_city"    json:"sourceCity,omitempty"`
	SourceCountry string     `db:"source_country" json:"sourceCountry,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"createdAt"`
	UpdatedAt     *time.Time `db:"updated_at"     json:"updatedAt,omitempty"`
}

// Clone returns a deep copy; pointer fields are duplicated so a cached
// snapshot never aliases a live record.
func (r Request) Clone() Request {
	out := r
	if r.ScheduledDate != nil {
		d := *r.ScheduledDate
		out.ScheduledDate = &d
	}
	if r.UpdatedAt != nil {
		u := *r.UpdatedAt
		out.UpdatedAt = &u
	}
	return out
}

// AgeReference returns the timestamp used for age-based selection:
// UpdatedAt when present, else CreatedAt, else now.
func (r Request) AgeReference(now time.Time) time.Time {
	switch {
	case r.UpdatedAt != nil && !r.UpdatedAt.IsZero():
		return *r.UpdatedAt
	case !r.CreatedAt.IsZero():
		return r.CreatedAt
	default:
		return now
	}
}

// StatusUpdate is the payload for a status-changing write.  Nil fields are
// left untouched.
type StatusUpdate struct {
	Status        Status
	ScheduledDate *time.Time
	Notes         *string
}

// FieldsPatch is a partial full-record edit.  Nil fields are left untouched.
type FieldsPatch struct {
	Notes       *string `json:"notes,omitempty"`
	ChildName   *string `json:"childName,omitempty"   validate:"omitempty,min=1,max=128"`
	ChildAge    *int    `json:"childAge,omitempty"    validate:"omitempty,min=1,max=99"`
	ParentName  *string `json:"parentName,omitempty"  validate:"omitempty,min=1,max=128"`
	ParentPhone *string `json:"parentPhone,omitempty" validate:"omitempty,min=5,max=32"`
	SectionID   *int64  `json:"sectionId,omitempty"   validate:"omitempty,min=1"`
	BranchID    *int64  `json:"branchId,omitempty"    validate:"omitempty,min=1"`
}

// Empty reports whether the patch carries no changes.
func (p FieldsPatch) Empty() bool {
	return p.Notes == nil && p.ChildName == nil && p.ChildAge == nil &&
		p.ParentName == nil && p.ParentPhone == nil && p.SectionID == nil &&
		p.BranchID == nil
}

// ApplyTo copies the non-nil patch fields onto r.
func (p FieldsPatch) ApplyTo(r *Request) {
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	if p.ChildName != nil {
		r.ChildName = *p.ChildName
	}
	if p.ChildAge != nil {
		r.ChildAge = *p.ChildAge
	}
	if p.ParentName != nil {
		r.ParentName = *p.ParentName
	}
	if p.ParentPhone != nil {
		r.ParentPhone = *p.ParentPhone
	}
	if p.SectionID != nil {
		r.SectionID = *p.SectionID
	}
	if p.BranchID != nil {
		r.BranchID = *p.BranchID
	}
}

// ApplyTo copies the update onto r, the same way the store will.
func (u StatusUpdate) ApplyTo(r *Request) {
	r.Status = u.Status
	if u.ScheduledDate != nil {
		d := *u.ScheduledDate
		r.ScheduledDate = &d
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
}
