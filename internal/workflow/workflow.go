// Package workflow holds the approval state machine of a task.
//
// Every operation takes the task by value and returns the updated
// copy. On failure the zero Task and a typed error are returned and
// the caller's task is left as it was.
package workflow

import (
	"context"
	"time"

	"github.com/dftm/dftm-calendar/internal/models"
)

type Action string

const (
	ActionAssign         Action = "assign"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionUpdateStatus   Action = "update_status"
	ActionUpdatePriority Action = "update_priority"
	ActionReschedule     Action = "reschedule"
)

// UserResolver looks up the user a task gets assigned to.
//
// LookupUser must return an error wrapping ErrNotFound
// when no user has the given id.
type UserResolver interface {
	LookupUser(ctx context.Context, id string) (models.User, error)
}

type ResolverFunc func(ctx context.Context, id string) (models.User, error)

func (f ResolverFunc) LookupUser(ctx context.Context, id string) (models.User, error) {
	return f(ctx, id)
}

type Workflow struct {
	users UserResolver
	now   func() time.Time
}

// New returns a Workflow. A nil now defaults to time.Now.
func New(users UserResolver, now func() time.Time) *Workflow {
	if now == nil {
		now = time.Now
	}
	return &Workflow{users: users, now: now}
}

// statuses a caller may set directly; the rest are reached through
// approval or rejection.
var settable = map[models.Status]bool{
	models.StatusInProgress:  true,
	models.StatusNotFeasible: true,
	models.StatusCompleted:   true,
}

// Assign sets the assignee of a pending task. The status is unchanged.
func (w *Workflow) Assign(ctx context.Context, task models.Task, userID string) (models.Task, error) {
	if err := requirePending(task, ActionAssign); err != nil {
		return models.Task{}, err
	}
	if err := w.resolveAssignee(ctx, userID); err != nil {
		return models.Task{}, err
	}

	out := task.Clone()
	out.AssigneeID = userID
	out.UpdatedAt = w.now()
	return out, nil
}

// Approve moves a pending task to APPROVED.
//
// When assigneeID is set and differs from the current assignee the
// user is validated and assigned in the same step. Without any
// assignee the approval is refused. A non-nil dueDate replaces the
// due date, truncated to its calendar day.
func (w *Workflow) Approve(ctx context.Context, task models.Task, assigneeID string, dueDate *time.Time) (models.Task, error) {
	if err := requirePending(task, ActionApprove); err != nil {
		return models.Task{}, err
	}

	assignee := task.AssigneeID
	if assigneeID != "" && assigneeID != task.AssigneeID {
		if err := w.resolveAssignee(ctx, assigneeID); err != nil {
			return models.Task{}, err
		}
		assignee = assigneeID
	}
	if assignee == "" {
		return models.Task{}, &PreconditionError{
			Action: ActionApprove,
			Status: task.Status,
			Reason: "task has no assignee",
		}
	}

	out := task.Clone()
	out.AssigneeID = assignee
	out.Status = models.StatusApproved
	if dueDate != nil && !dueDate.IsZero() {
		due := truncateDay(*dueDate)
		out.DueDate = &due
	}
	out.UpdatedAt = w.now()
	return out, nil
}

// Reject moves a pending task to REJECTED whether or not it is assigned.
func (w *Workflow) Reject(task models.Task) (models.Task, error) {
	if err := requirePending(task, ActionReject); err != nil {
		return models.Task{}, err
	}

	out := task.Clone()
	out.Status = models.StatusRejected
	out.UpdatedAt = w.now()
	return out, nil
}

// UpdateStatus sets one of IN_PROGRESS, NOT_FEASIBLE or COMPLETED
// on a task that is pending or in progress.
func (w *Workflow) UpdateStatus(task models.Task, status models.Status) (models.Task, error) {
	if !status.Valid() {
		return models.Task{}, &ValidationError{
			Field:  "status",
			Value:  string(status),
			Reason: "unknown status",
		}
	}
	if !settable[status] {
		return models.Task{}, &PreconditionError{
			Action: ActionUpdateStatus,
			Status: task.Status,
			Reason: "status " + string(status) + " is only reachable through approval",
		}
	}
	if err := requireStatus(task, ActionUpdateStatus, models.StatusPending, models.StatusInProgress); err != nil {
		return models.Task{}, err
	}

	out := task.Clone()
	out.Status = status
	out.UpdatedAt = w.now()
	return out, nil
}

// UpdatePriority is allowed in every status.
func (w *Workflow) UpdatePriority(task models.Task, priority models.Priority) (models.Task, error) {
	if !priority.Valid() {
		return models.Task{}, &ValidationError{
			Field:  "priority",
			Value:  string(priority),
			Reason: "unknown priority",
		}
	}

	out := task.Clone()
	out.Priority = priority
	out.UpdatedAt = w.now()
	return out, nil
}

// Reschedule moves the due date of a task that is neither terminal
// nor archived. date is truncated to its calendar day.
func (w *Workflow) Reschedule(task models.Task, date time.Time) (models.Task, error) {
	if date.IsZero() {
		return models.Task{}, &ValidationError{
			Field:  "due_date",
			Reason: "date is required",
		}
	}
	if task.Status.Terminal() {
		return models.Task{}, terminal(task, ActionReschedule)
	}
	if task.Archived {
		return models.Task{}, &PreconditionError{
			Action: ActionReschedule,
			Status: task.Status,
			Reason: "task is archived",
		}
	}

	out := task.Clone()
	due := truncateDay(date)
	out.DueDate = &due
	out.UpdatedAt = w.now()
	return out, nil
}

// AllowedActions lists the operations the task accepts right now.
// Assignment and approval are listed without checking the assignee,
// which is only known once the caller supplies one.
func (w *Workflow) AllowedActions(task models.Task) []Action {
	actions := make([]Action, 0, 6)
	switch task.Status {
	case models.StatusPending:
		actions = append(actions, ActionAssign, ActionApprove, ActionReject, ActionUpdateStatus)
	case models.StatusInProgress:
		actions = append(actions, ActionUpdateStatus)
	}
	actions = append(actions, ActionUpdatePriority)
	if !task.Status.Terminal() && !task.Archived {
		actions = append(actions, ActionReschedule)
	}
	return actions
}

func (w *Workflow) resolveAssignee(ctx context.Context, userID string) error {
	if userID == "" {
		return &ValidationError{Field: "assignee", Reason: "user id is required"}
	}
	if w.users == nil {
		return &ValidationError{Field: "assignee", Value: userID, Reason: "no user directory", Err: ErrNotFound}
	}

	user, err := w.users.LookupUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return &ValidationError{Field: "assignee", Value: userID, Reason: "unknown user", Err: err}
		}
		return err
	}
	if !user.Active {
		return &ValidationError{Field: "assignee", Value: userID, Reason: "user is inactive"}
	}
	return nil
}

func requirePending(task models.Task, action Action) error {
	return requireStatus(task, action, models.StatusPending)
}

func requireStatus(task models.Task, action Action, allowed ...models.Status) error {
	if task.Status.Terminal() {
		return terminal(task, action)
	}
	for _, s := range allowed {
		if task.Status == s {
			return nil
		}
	}
	return &PreconditionError{
		Action: action,
		Status: task.Status,
		Reason: "not allowed from this status",
	}
}

func terminal(task models.Task, action Action) error {
	return &PreconditionError{
		Action: action,
		Status: task.Status,
		Reason: "task is in a terminal state",
	}
}

// truncateDay keeps the calendar day of t in its own location and
// returns it at midnight UTC, the stored form of a due date.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
