package storage

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned (wrapped) when a field fails validation.
var ErrValidation = errors.New("validation failed")

const (
	maxTitleLen  = 255
	maxReasonLen = 1000
)

// Priority levels accepted for a todo.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Status values accepted for a todo.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// Todo is a persisted task node. ParentID is nil for roots; a non-nil
// ParentID pointing at a deleted row is tolerated (the tree assembler
// promotes such orphans to roots).
type Todo struct {
	ID        int64      `json:"id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	Title     string     `json:"title"`
	Reason    *string    `json:"reason,omitempty"`
	Priority  string     `json:"priority"`
	Status    string     `json:"status"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Patch carries a partial update. Nil fields are left untouched
// (exclude-unset semantics, not a full replace).
type Patch struct {
	Title    *string
	Reason   *string
	Priority *string
	Status   *string
	Deadline *time.Time
}

// Filter narrows ListTodos results. Zero values match everything.
type Filter struct {
	Status    string
	Priority  string
	DueBefore *time.Time
	DueAfter  *time.Time
}

// ValidPriority reports whether p is a recognized priority level.
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ValidStatus reports whether s is a recognized status value.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusInProgress || s == StatusDone
}

// deadlineLayouts are the timestamp shapes accepted from external input,
// tried in order.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDeadline converts an ISO-8601 string into a timestamp. An empty
// string yields nil (no deadline); a malformed string is a validation error,
// never a silent nil.
func ParseDeadline(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: unparsable deadline %q", ErrValidation, raw)
}

// validateTodo checks field constraints shared by create and patch paths.
func validateTodo(t Todo) error {
	if t.Title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxTitleLen)
	}
	if t.Reason != nil && utf8.RuneCountInString(*t.Reason) > maxReasonLen {
		return fmt.Errorf("%w: reason exceeds %d characters", ErrValidation, maxReasonLen)
	}
	if !ValidPriority(t.Priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, t.Priority)
	}
	if !ValidStatus(t.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return nil
}
