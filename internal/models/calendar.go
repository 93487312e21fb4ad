package models

import "time"

// CalendarCell is one day slot of a month grid. Padding
// slots before the 1st and after the last day have a nil Date.
type CalendarCell struct {
	Date           *time.Time
	IsCurrentMonth bool
	Tasks          []Task
}
