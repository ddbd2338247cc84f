package domain

import "fieldline/internal/date"

// Derivation is the computed view of an assignment against a live template.
type Derivation struct {
	CompletedSubtaskIDs  []string
	CompletionPercentage int
	Status               Status
	Done                 int
	Total                int
}

// Complete reports whether every live subtask is done. A template without
// subtasks never completes.
func (d Derivation) Complete() bool {
	return d.Total > 0 && d.Done == d.Total
}

// CompletionPercentage is floor(100*done/total), 0 when total is 0. Flooring
// keeps 100 reserved for a fully completed list.
func CompletionPercentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// DeriveStatus computes completion and status for a against the live
// template t on the calendar day today. Completion ids that no longer exist
// in t are dropped. A non-completed assignment whose due date has passed is
// reported as overdue.
func DeriveStatus(a Assignment, t TaskTemplate, today date.Date) Derivation {
	marked := make(map[string]struct{}, len(a.CompletedSubtaskIDs))
	for _, id := range a.CompletedSubtaskIDs {
		marked[id] = struct{}{}
	}
	done := make([]string, 0, len(marked))
	for _, st := range t.Subtasks {
		if _, ok := marked[st.ID]; ok {
			done = append(done, st.ID)
		}
	}
	d := Derivation{
		CompletedSubtaskIDs:  done,
		Done:                 len(done),
		Total:                len(t.Subtasks),
		CompletionPercentage: CompletionPercentage(len(done), len(t.Subtasks)),
	}
	switch {
	case d.Complete():
		d.Status = StatusCompleted
	case !a.DueDate.IsZero() && a.DueDate.Before(today):
		d.Status = StatusOverdue
	case d.Done > 0:
		d.Status = StatusInProgress
	default:
		d.Status = StatusPending
	}
	return d
}

// Apply copies the derived fields onto a and maintains the started and
// completed dates. It returns the updated assignment and whether any stored
// field changed.
func (d Derivation) Apply(a Assignment, today date.Date) (Assignment, bool) {
	changed := d.Status != a.Status || d.CompletionPercentage != a.CompletionPercentage ||
		!sameIDs(d.CompletedSubtaskIDs, a.CompletedSubtaskIDs)
	a.CompletedSubtaskIDs = d.CompletedSubtaskIDs
	a.CompletionPercentage = d.CompletionPercentage
	a.Status = d.Status
	if d.Done > 0 && a.StartedDate == nil {
		a.StartedDate = today.Ptr()
		changed = true
	}
	if d.Complete() {
		if a.CompletedDate == nil {
			a.CompletedDate = today.Ptr()
			changed = true
		}
	} else if a.CompletedDate != nil {
		a.CompletedDate = nil
		changed = true
	}
	return a, changed
}

// ToggleID flips membership of id in ids, preserving order of the rest.
func ToggleID(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, v := range ids {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Count adds one assignment with the given status to the tally.
func (s *WorkerStats) Count(status Status) {
	s.Total++
	switch status {
	case StatusCompleted:
		s.Completed++
	case StatusInProgress:
		s.InProgress++
	case StatusOverdue:
		s.Overdue++
	default:
		s.Pending++
	}
	s.CompletionRatePercent = 0
	if s.Total > 0 {
		s.CompletionRatePercent = float64(s.Completed) * 100 / float64(s.Total)
	}
}
