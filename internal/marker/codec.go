// internal/marker/codec.go
//
// Archive marker protocol embedded in trial_request.notes.
//
// Context
// -------
// Archival is not a column.  It is a sub-state carried inside the free-text
// notes as a bracketed human message followed by a machine tag:
//
//	price too high [Request archived 05.06.2025] {{archived}}
//
// Three tags exist: {{archived}}, {{restored}}, and {{success}}.  The
// persisted field keeps the full marker history; Strip removes it for
// display only.
//
// Notes
// -----
//   - Every function is pure and never fails.  Empty notes yield false from
//     every predicate.
//   - Dates use the school's local day-first format, 02.01.2006.
package marker

import (
	"regexp"
	"strings"
	"time"
)

const (
	ArchiveTag = "{{archived}}"
	RestoreTag = "{{restored}}"
	SuccessTag = "{{success}}"

	DateLayout = "02.01.2006"
)

// now is swapped in tests.
var now = time.Now

// BuildArchive returns a fresh archive marker stamped with today's date.
func BuildArchive() string { return build("Request archived", ArchiveTag) }

// BuildRestore returns a fresh restore marker.
func BuildRestore() string { return build("Request restored", RestoreTag) }

// BuildSuccess returns a fresh successful-enrollment marker.
func BuildSuccess() string { return build("Successful enrollment", SuccessTag) }

func build(label, tag string) string {
	return "[" + label + " " + now().Format(DateLayout) + "] " + tag
}

// Append returns notes with marker appended after a single space.  The
// input is never modified.
func Append(notes, marker string) string {
	if strings.TrimSpace(notes) == "" {
		return marker
	}
	return notes + " " + marker
}

var (
	reMessage = regexp.MustCompile(`\[(?:Request archived|Request restored|Successful enrollment) \d{2}\.\d{2}\.\d{4}\]`)
	reTag     = regexp.MustCompile(`\{\{(?:archived|restored|success)\}\}`)
	reSpaces  = regexp.MustCompile(`[ \t]{2,}`)
	reTrail   = regexp.MustCompile(`[ \t]+\n`)

	reArchivePair = regexp.MustCompile(`[ \t]*\[Request archived \d{2}\.\d{2}\.\d{4}\][ \t]*\{\{archived\}\}`)
	reArchiveLone = regexp.MustCompile(`[ \t]*\{\{archived\}\}`)
)

// Strip removes every recognised message and tag, collapses the whitespace
// left behind, and trims.  Strip(Strip(x)) == Strip(x).
func Strip(notes string) string {
	out := notes
	for {
		next := reMessage.ReplaceAllString(out, "")
		next = reTag.ReplaceAllString(next, "")
		next = reSpaces.ReplaceAllString(next, " ")
		next = reTrail.ReplaceAllString(next, "\n")
		next = strings.TrimSpace(next)
		if next == out {
			return out
		}
		out = next
	}
}

// RemoveArchive drops every archive message/tag pair and any lone archive
// tag, leaving the rest of the history intact.
func RemoveArchive(notes string) string {
	out := reArchivePair.ReplaceAllString(notes, "")
	out = reArchiveLone.ReplaceAllString(out, "")
	return strings.TrimRight(out, " \t")
}

// Archive appends an archive marker unless one is already present.  The
// second return reports whether notes changed.
func Archive(notes string) (string, bool) {
	if strings.Contains(notes, ArchiveTag) {
		return notes, false
	}
	return Append(notes, BuildArchive()), true
}

// Restore clears the archive markers and appends a restore marker.  Notes
// that are not archived come back unchanged.
func Restore(notes string) (string, bool) {
	if !strings.Contains(notes, ArchiveTag) {
		return notes, false
	}
	return Append(RemoveArchive(notes), BuildRestore()), true
}

// MarkSuccess appends a success marker unless one is already present.
func MarkSuccess(notes string) (string, bool) {
	if strings.Contains(notes, SuccessTag) {
		return notes, false
	}
	return Append(notes, BuildSuccess()), true
}
