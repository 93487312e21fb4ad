package models

import "time"

// Comment is a note left on a task by one of its users.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Text      LocalizedText
	CreatedAt time.Time
}
