// Package gcal publishes approved tasks to a Google calendar
// as all-day events.
package gcal

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/dftm/dftm-calendar/internal/models"
)

// TaskIDProperty is the private extended property linking an event to its task.
const TaskIDProperty = "dftm_task_id"

const dateLayout = "2006-01-02"

// Google Calendar event colour ids.
var priorityColors = map[models.Priority]string{
	models.PriorityLow:    "2",
	models.PriorityMedium: "5",
	models.PriorityHigh:   "6",
	models.PriorityUrgent: "11",
}

// Publishable reports whether the task belongs on the shared calendar.
func Publishable(task models.Task) bool {
	return task.Status == models.StatusApproved &&
		!task.Archived &&
		task.DueDate != nil && !task.DueDate.IsZero()
}

// EventFromTask builds the all-day event for task on its due
// date. lang selects the description translation.
func EventFromTask(task models.Task, lang models.Language) (*calendar.Event, error) {
	if task.DueDate == nil || task.DueDate.IsZero() {
		return nil, fmt.Errorf("task %s has no due date", task.ID)
	}

	due := *task.DueDate
	start := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	return &calendar.Event{
		Summary:     task.Title,
		Description: task.Description.Resolve(lang, task.Description.Original),
		ColorId:     priorityColors[task.Priority],
		Start:       &calendar.EventDateTime{Date: start.Format(dateLayout)},
		End:         &calendar.EventDateTime{Date: end.Format(dateLayout)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: task.ID},
		},
	}, nil
}

// diff returns the fields of target that differ from existing,
// or nil when the event is up to date. Fields cleared on target are
// force-sent so the patch empties them instead of omitting them.
func diff(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	changed := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		changed = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		if target.Description == "" {
			patch.ForceSendFields = append(patch.ForceSendFields, "Description")
		}
		changed = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		if target.ColorId == "" {
			patch.ForceSendFields = append(patch.ForceSendFields, "ColorId")
		}
		changed = true
	}
	if eventDate(existing.Start) != target.Start.Date || eventDate(existing.End) != target.End.Date {
		patch.Start = target.Start
		patch.End = target.End
		changed = true
	}

	if !changed {
		return nil
	}
	return patch
}

func eventDate(dt *calendar.EventDateTime) string {
	if dt == nil {
		return ""
	}
	return dt.Date
}
