package marker

import (
	"regexp"
	"strings"
	"time"

	"github.com/yanizio/sportcrm/internal/trial"
)

// IsArchived reports whether the archive tag is present.
func IsArchived(r trial.Request) bool {
	return strings.Contains(r.Notes, ArchiveTag)
}

// IsRestored reports a restore tag on a request that is not archived.
func IsRestored(r trial.Request) bool {
	return strings.Contains(r.Notes, RestoreTag) && !IsArchived(r)
}

// IsSuccessful reports a success tag or SIGNED status.
func IsSuccessful(r trial.Request) bool {
	return r.Status == trial.StatusSigned || strings.Contains(r.Notes, SuccessTag)
}

// ArchiveState is the structured reading of a notes field.
type ArchiveState struct {
	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	RestoredAt *time.Time `json:"restoredAt,omitempty"`
	Successful bool       `json:"successful"`
}

var reDated = regexp.MustCompile(`\[(Request archived|Request restored) (\d{2}\.\d{2}\.\d{4})\]\s*(\{\{archived\}\}|\{\{restored\}\})`)

// State scans notes once.  The dates come from the last archive and last
// restore message, matched by position.  Archived mirrors IsArchived so
// the two never disagree.
func State(r trial.Request) ArchiveState {
	st := ArchiveState{
		Archived:   IsArchived(r),
		Successful: IsSuccessful(r),
	}
	for _, m := range reDated.FindAllStringSubmatch(r.Notes, -1) {
		d, err := time.ParseInLocation(DateLayout, m[2], time.Local)
		if err != nil {
			continue
		}
		switch m[3] {
		case ArchiveTag:
			st.ArchivedAt = &d
		case RestoreTag:
			st.RestoredAt = &d
		}
	}
	if !st.Archived {
		st.ArchivedAt = nil
	}
	return st
}

// Display returns the notes with technical markers removed.
func Display(r trial.Request) string { return Strip(r.Notes) }
