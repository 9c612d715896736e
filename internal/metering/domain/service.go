package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// RecordMeteringData stores one sample, creating its source, user,
	// project and resource on first sight and refreshing the resource's
	// metadata.
	RecordMeteringData(ctx context.Context, sample Sample) (*Meter, error)
	GetUsers(ctx context.Context, source string) ([]string, error)
	GetProjects(ctx context.Context, source string) ([]string, error)
	GetResources(ctx context.Context, filter ResourceFilter) ([]ResourceResponse, error)
	GetMeters(ctx context.Context, filter MeterFilter) ([]MeterResponse, error)
	GetSamples(ctx context.Context, filter SampleFilter) ([]Sample, error)
	// Clear removes every stored row.
	Clear(ctx context.Context) error
}

// Sample is a metering message as submitted and as read back.
type Sample struct {
	Source           string    `json:"source"`
	CounterName      string    `json:"counter_name"`
	CounterType      string    `json:"counter_type"`
	CounterUnit      string    `json:"counter_unit"`
	CounterVolume    float64   `json:"counter_volume"`
	UserID           string    `json:"user_id"`
	ProjectID        string    `json:"project_id"`
	ResourceID       string    `json:"resource_id"`
	Timestamp        time.Time `json:"timestamp"`
	ResourceMetadata Metadata  `json:"resource_metadata"`
	MessageID        string    `json:"message_id"`
	MessageSignature string    `json:"message_signature"`
}

// SampleFilter selects samples. Start is inclusive, End exclusive.
type SampleFilter struct {
	User      string
	Project   string
	Resource  string
	Source    string
	Meter     string
	Start     *time.Time
	End       *time.Time
	MetaQuery map[string]string
}

type ResourceFilter struct {
	User      string
	Project   string
	Resource  string
	Source    string
	Start     *time.Time
	End       *time.Time
	MetaQuery map[string]string
}

type MeterFilter struct {
	User      string
	Project   string
	Resource  string
	Source    string
	MetaQuery map[string]string
}

type ResourceMeter struct {
	CounterName string `json:"counter_name"`
	CounterType string `json:"counter_type"`
	CounterUnit string `json:"counter_unit"`
}

type ResourceResponse struct {
	ResourceID string          `json:"resource_id"`
	ProjectID  string          `json:"project_id"`
	UserID     string          `json:"user_id"`
	Metadata   Metadata        `json:"metadata"`
	Meters     []ResourceMeter `json:"meter"`
}

type MeterResponse struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Unit       string `json:"unit"`
	ResourceID string `json:"resource_id"`
	ProjectID  string `json:"project_id"`
	UserID     string `json:"user_id"`
}

var (
	ErrInvalidCounterName   = errors.New("invalid_counter_name")
	ErrInvalidResource      = errors.New("invalid_resource_id")
	ErrInvalidRange         = errors.New("invalid_time_range")
	ErrMetaQueryUnsupported = errors.New("metaquery_not_supported")
)
