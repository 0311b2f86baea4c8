// internal/transition/rules.go
//
// Funnel status rules and auxiliary-data requirements.
//
// Context
// -------
// Any status may move to any other status.  What differs per target is the
// auxiliary data that must accompany the move:
//
//	TRIAL_ASSIGNED  a scheduled date
//	REFUSED         one or more reason codes and/or a comment
//	NEW, SIGNED     nothing
//
// Workflow
// --------
// Plan turns (request, target, aux) into the exact trial.StatusUpdate that
// will be written, or a *ValidationError.  Nothing here performs I/O, so a
// rejected plan guarantees no mutation call was issued.
//
// Notes
// -----
//   - Re-entering TRIAL_ASSIGNED is a reschedule and is allowed.  Any other
//     same-status move returns ErrUnchanged.
//   - The refusal text is permanent commentary prepended to notes.  It is
//     not a marker and Strip leaves it alone.
package transition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yanizio/sportcrm/internal/trial"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrUnchanged signals a move onto the request's current status.
var ErrUnchanged = errors.New("status unchanged")

// ValidationError names the missing or bad piece of auxiliary data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Requirement describes the auxiliary data a target status needs.
type Requirement int

const (
	NeedsNothing Requirement = iota
	NeedsSchedule
	NeedsReason
)

func (r Requirement) String() string {
	switch r {
	case NeedsSchedule:
		return "schedule"
	case NeedsReason:
		return "reason"
	}
	return "none"
}

// Required reports what a move into target must carry.
func Required(target trial.Status) Requirement {
	switch target {
	case trial.StatusTrialAssigned:
		return NeedsSchedule
	case trial.StatusRefused:
		return NeedsReason
	}
	return NeedsNothing
}

// Aux is the auxiliary data captured for a transition.
type Aux struct {
	ScheduledDate *time.Time `json:"scheduledDate,omitempty"`
	Reasons       []string   `json:"reasons,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

// Rules holds the refusal reason catalogue (code → label).  An empty
// catalogue accepts any code and prints it verbatim.
type Rules struct {
	reasons map[string]string
}

// New builds Rules over a reason catalogue.
func New(reasons map[string]string) *Rules {
	cp := make(map[string]string, len(reasons))
	for k, v := range reasons {
		cp[k] = v
	}
	return &Rules{reasons: cp}
}

// Reasons returns a copy of the catalogue.
func (r *Rules) Reasons() map[string]string {
	out := make(map[string]string, len(r.reasons))
	for k, v := range r.reasons {
		out[k] = v
	}
	return out
}

// Plan validates a move and returns the write it implies.
func (r *Rules) Plan(req trial.Request, target trial.Status, aux Aux) (trial.StatusUpdate, error) {
	if !target.Valid() {
		return trial.StatusUpdate{}, invalid("status", fmt.Sprintf("unknown status %q", target))
	}
	if target == req.Status && target != trial.StatusTrialAssigned {
		return trial.StatusUpdate{}, ErrUnchanged
	}

	u := trial.StatusUpdate{Status: target}
	switch Required(target) {
	case NeedsSchedule:
		if aux.ScheduledDate == nil || aux.ScheduledDate.IsZero() {
			return trial.StatusUpdate{}, invalid("scheduledDate", "required for TRIAL_ASSIGNED")
		}
		d := *aux.ScheduledDate
		u.ScheduledDate = &d
	case NeedsReason:
		text, err := r.refusalText(aux)
		if err != nil {
			return trial.StatusUpdate{}, err
		}
		notes := text
		if strings.TrimSpace(req.Notes) != "" {
			notes = text + "\n" + req.Notes
		}
		u.Notes = &notes
	}
	return u, nil
}

// PlanDirect is the entry point used outside drag-and-drop.  A reschedule
// without a new date reuses the request's known scheduled date.
func (r *Rules) PlanDirect(req trial.Request, target trial.Status, aux *Aux) (trial.StatusUpdate, error) {
	var a Aux
	if aux != nil {
		a = *aux
	}
	if target == trial.StatusTrialAssigned && a.ScheduledDate == nil && req.ScheduledDate != nil {
		d := *req.ScheduledDate
		a.ScheduledDate = &d
	}
	return r.Plan(req, target, a)
}

func (r *Rules) refusalText(aux Aux) (string, error) {
	comment := strings.TrimSpace(aux.Comment)
	labels := make([]string, 0, len(aux.Reasons))
	for _, code := range aux.Reasons {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		label := code
		if len(r.reasons) > 0 {
			l, ok := r.reasons[code]
			if !ok {
				return "", invalid("reasons", fmt.Sprintf("unknown reason %q", code))
			}
			label = l
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 && comment == "" {
		return "", invalid("reasons", "a reason or comment is required for REFUSED")
	}

	var parts []string
	if len(labels) > 0 {
		parts = append(parts, "Reasons: "+strings.Join(labels, ", ")+".")
	}
	if comment != "" {
		parts = append(parts, "Comment: "+comment)
	}
	return strings.Join(parts, " "), nil
}

// CanArchive rejects requests outside REFUSED and SIGNED.  Restoring has
// the same precondition.
func CanArchive(req trial.Request) error {
	if !req.Status.Terminal() {
		return invalid("status", fmt.Sprintf("%s requests cannot be archived", req.Status))
	}
	return nil
}

// CanArchiveSuccessful only accepts SIGNED requests.
func CanArchiveSuccessful(req trial.Request) error {
	if req.Status != trial.StatusSigned {
		return invalid("status", "only SIGNED requests can be archived as successful")
	}
	return nil
}
