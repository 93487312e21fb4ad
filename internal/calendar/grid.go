package calendar

import (
	"time"

	"github.com/dftm/dftm-calendar/internal/models"
)

// DateField selects which task date places a task on the grid.
type DateField int

const (
	DueDateField DateField = iota
	CreatedAtField
)

func ParseDateField(s string) (DateField, bool) {
	switch s {
	case "", "due", "due_date", "dueDate":
		return DueDateField, true
	case "created", "created_at", "createdAt":
		return CreatedAtField, true
	default:
		return 0, false
	}
}

type options struct {
	loc    *time.Location
	filter Predicate
	field  DateField
}

type Option func(*options)

// WithLocation sets the viewer's calendar. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func WithFilter(p Predicate) Option {
	return func(o *options) {
		o.filter = p
	}
}

func WithDateField(f DateField) Option {
	return func(o *options) {
		o.field = f
	}
}

// BuildGrid lays out ym as whole Monday-first weeks and places
// every task that passes the filter on the day of its date.
//
// Cells outside the month have a nil Date. Tasks without a usable
// date are skipped. The function keeps no state, so identical
// inputs always produce identical grids.
func BuildGrid(ym YearMonth, tasks []models.Task, opts ...Option) []models.CalendarCell {
	o := options{loc: time.UTC, field: DueDateField}
	for _, opt := range opts {
		opt(&o)
	}

	days := ym.DaysIn()
	lead := ISOWeekday(ym.First(o.loc).Weekday())
	total := (lead + days + 6) / 7 * 7

	buckets := make(map[int][]models.Task)
	for _, task := range tasks {
		date, ok := taskDate(task, o.field, o.loc)
		if !ok || date.Year() != ym.Year || date.Month() != ym.Month {
			continue
		}
		if o.filter != nil && !o.filter(task) {
			continue
		}
		buckets[date.Day()] = append(buckets[date.Day()], task.Clone())
	}

	cells := make([]models.CalendarCell, total)
	for i := range cells {
		day := i - lead + 1
		if day < 1 || day > days {
			cells[i] = models.CalendarCell{Tasks: []models.Task{}}
			continue
		}

		date := time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, o.loc)
		dayTasks := buckets[day]
		if dayTasks == nil {
			dayTasks = []models.Task{}
		}
		cells[i] = models.CalendarCell{
			Date:           &date,
			IsCurrentMonth: true,
			Tasks:          dayTasks,
		}
	}
	return cells
}

// Weeks splits a grid into rows of seven cells.
func Weeks(cells []models.CalendarCell) [][]models.CalendarCell {
	rows := make([][]models.CalendarCell, 0, len(cells)/7)
	for i := 0; i+7 <= len(cells); i += 7 {
		rows = append(rows, cells[i:i+7])
	}
	return rows
}

// taskDate returns the date whose year, month and day place the
// task. Creation times are instants and are read in loc. Due dates
// are calendar dates and are read as stored, whatever the viewer.
func taskDate(task models.Task, field DateField, loc *time.Location) (time.Time, bool) {
	switch field {
	case CreatedAtField:
		if task.CreatedAt.IsZero() {
			return time.Time{}, false
		}
		return task.CreatedAt.In(loc), true
	default:
		if task.DueDate == nil || task.DueDate.IsZero() {
			return time.Time{}, false
		}
		return *task.DueDate, true
	}
}
