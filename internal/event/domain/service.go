package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// RecordEvents stores a batch atomically: either every event and trait
	// is written or none is. Failures are reported as *BatchError.
	RecordEvents(ctx context.Context, events []EventInput) ([]RecordedEvent, error)
	// MakeTrait validates one trait and maps it onto a storage record for
	// the given event, resolving its name through the registry.
	MakeTrait(ctx context.Context, input TraitInput, eventID snowflake.ID) (*Trait, error)
	GetEvents(ctx context.Context, filter EventFilter) ([]EventResponse, error)
}

type EventInput struct {
	Name   string       `json:"event_name"`
	When   time.Time    `json:"generated"`
	Traits []TraitInput `json:"traits"`
}

type TraitInput struct {
	Name  string    `json:"name"`
	Type  TraitType `json:"dtype"`
	Value any       `json:"value"`
}

// RecordedEvent pairs a stored event with its stored traits, in input order.
type RecordedEvent struct {
	Event  Event
	Traits []Trait
}

type EventFilter struct {
	Start *time.Time
	End   *time.Time
	Name  string
}

type TraitResponse struct {
	Name  string    `json:"name"`
	Type  TraitType `json:"dtype"`
	Value any       `json:"value"`
}

type EventResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"event_name"`
	GeneratedAt time.Time       `json:"generated"`
	Traits      []TraitResponse `json:"traits"`
}

var (
	ErrInvalidEventName = errors.New("invalid_event_name")
	ErrInvalidTraitName = errors.New("invalid_trait_name")
	ErrInvalidTraitType = errors.New("invalid_trait_type")
	ErrInvalidTimestamp = errors.New("invalid_timestamp")
	ErrTypeMismatch     = errors.New("type_mismatch")
	ErrCorruptTrait     = errors.New("corrupt_trait")
	ErrInvalidRange     = errors.New("invalid_time_range")
)

// EntryError is the failure of one event of a batch. Index is -1 when the
// batch failed as a whole, such as on commit.
type EntryError struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

// BatchError reports which entries of a RecordEvents call failed. Nothing
// of the batch was persisted.
type BatchError struct {
	Entries []EntryError
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		if entry.Index < 0 {
			parts = append(parts, fmt.Sprintf("batch: %v", entry.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("event %d: %v", entry.Index, entry.Err))
	}
	return "record events: " + strings.Join(parts, "; ")
}

// Unwrap exposes the entry errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Entries))
	for _, entry := range e.Entries {
		errs = append(errs, entry.Err)
	}
	return errs
}

// Indexes returns the failing entry positions in ascending order.
func (e *BatchError) Indexes() []int {
	idx := make([]int, 0, len(e.Entries))
	for _, entry := range e.Entries {
		idx = append(idx, entry.Index)
	}
	sort.Ints(idx)
	return idx
}
