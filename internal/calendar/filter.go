package calendar

import "github.com/dftm/dftm-calendar/internal/models"

type Predicate func(models.Task) bool

// All matches when every non-nil predicate matches.
func All(preds ...Predicate) Predicate {
	return func(t models.Task) bool {
		for _, p := range preds {
			if p != nil && !p(t) {
				return false
			}
		}
		return true
	}
}

// ByAssignee matches tasks assigned to userID. An empty id matches everything.
func ByAssignee(userID string) Predicate {
	return func(t models.Task) bool {
		return userID == "" || t.AssigneeID == userID
	}
}

func ByPriority(p models.Priority) Predicate {
	return func(t models.Task) bool {
		return p == "" || t.Priority == p
	}
}

func ByStatus(statuses ...models.Status) Predicate {
	return func(t models.Task) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if t.Status == s {
				return true
			}
		}
		return false
	}
}

func CompletedVisible(show bool) Predicate {
	return func(t models.Task) bool {
		return show || t.Status != models.StatusCompleted
	}
}

func ArchivedVisible(show bool) Predicate {
	return func(t models.Task) bool {
		return show || !t.Archived
	}
}

// Filter mirrors the calendar filter bar.
type Filter struct {
	Assignee      string
	Priority      models.Priority
	ShowCompleted bool
	ShowArchived  bool
}

func (f Filter) Predicate() Predicate {
	return All(
		ByAssignee(f.Assignee),
		ByPriority(f.Priority),
		CompletedVisible(f.ShowCompleted),
		ArchivedVisible(f.ShowArchived),
	)
}
