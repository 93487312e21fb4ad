package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusNotFeasible Status = "NOT_FEASIBLE"
	StatusCompleted   Status = "COMPLETED"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
)

// Statuses lists every recognized status in display order.
var Statuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusNotFeasible,
	StatusCompleted,
	StatusApproved,
	StatusRejected,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further approval workflow
// transition is accepted once the task reached s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus accepts the canonical tag in any letter case,
// e.g. "in_progress" and "IN_PROGRESS".
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

var Priorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

func ParsePriority(raw string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", false
	}
	return p, true
}

type Task struct {
	ID          string
	Title       string
	Description LocalizedText
	Status      Status
	Priority    Priority
	AssigneeID  string
	AssignerID  string
	Reporter    string
	// DueDate is a calendar day held at midnight UTC.
	DueDate     *time.Time
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Task) Assigned() bool {
	return t.AssigneeID != ""
}

// Clone returns a copy of t that shares no mutable state with it.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	out.Description = t.Description.Clone()
	return out
}
