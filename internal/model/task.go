package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTodoNameLength is the longest task name, in characters.
const MaxTodoNameLength = 256

// Task is a single todo entry owned by one user.
type Task struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;size:36"`
	TodoName  string
	Completed bool `gorm:"default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClampTodoName trims name and cuts it to MaxTodoNameLength characters.
func ClampTodoName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxTodoNameLength {
		return name
	}
	return strings.TrimSpace(string([]rune(name)[:MaxTodoNameLength]))
}

// Filter selects which tasks of a list are shown.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterOngoing   Filter = "ongoing"
	FilterCompleted Filter = "completed"
)

// Filters lists the selectable filters in display order.
var Filters = []Filter{FilterAll, FilterOngoing, FilterCompleted}

// ParseFilter maps a raw value to a Filter. Unknown values select all tasks.
func ParseFilter(raw string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(raw))) {
	case FilterOngoing:
		return FilterOngoing
	case FilterCompleted:
		return FilterCompleted
	default:
		return FilterAll
	}
}

// Match reports whether the task is shown under f.
func (f Filter) Match(t Task) bool {
	switch f {
	case FilterOngoing:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Label is the human-readable name of the filter.
func (f Filter) Label() string {
	switch f {
	case FilterOngoing:
		return "Ongoing"
	case FilterCompleted:
		return "Completed"
	default:
		return "All"
	}
}
