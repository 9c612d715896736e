package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Source struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(255)"`
}

func (Source) TableName() string { return "sources" }

type User struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(255)"`
}

func (User) TableName() string { return "users" }

type Project struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(255)"`
}

func (Project) TableName() string { return "projects" }

// Resource carries the most recently recorded metadata of a metered thing.
type Resource struct {
	ID               string    `json:"id" gorm:"primaryKey;type:varchar(255)"`
	UserID           *string   `json:"user_id" gorm:"type:varchar(255);index:ix_resources_user_id"`
	User             *User     `json:"-" gorm:"foreignKey:UserID"`
	ProjectID        *string   `json:"project_id" gorm:"type:varchar(255);index:ix_resources_project_id"`
	Project          *Project  `json:"-" gorm:"foreignKey:ProjectID"`
	ResourceMetadata Metadata  `json:"resource_metadata"`
}

func (Resource) TableName() string { return "resources" }

// Meter is one raw sample.
type Meter struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	CounterName      string       `json:"counter_name" gorm:"type:varchar(255);not null;index:ix_meters_counter_name"`
	CounterType      string       `json:"counter_type" gorm:"type:varchar(255)"`
	CounterUnit      string       `json:"counter_unit" gorm:"type:varchar(255)"`
	CounterVolume    float64      `json:"counter_volume"`
	UserID           *string      `json:"user_id" gorm:"type:varchar(255);index:ix_meters_user_id"`
	User             *User        `json:"-" gorm:"foreignKey:UserID"`
	ProjectID        *string      `json:"project_id" gorm:"type:varchar(255);index:ix_meters_project_id"`
	Project          *Project     `json:"-" gorm:"foreignKey:ProjectID"`
	ResourceID       string       `json:"resource_id" gorm:"type:varchar(255);not null;index:ix_meters_resource_id"`
	Resource         *Resource    `json:"-" gorm:"foreignKey:ResourceID"`
	ResourceMetadata Metadata     `json:"resource_metadata"`
	Timestamp        time.Time    `json:"timestamp" gorm:"not null;index:ix_meters_timestamp"`
	MessageSignature string       `json:"message_signature" gorm:"type:text"`
	MessageID        string       `json:"message_id" gorm:"type:varchar(255)"`
}

func (Meter) TableName() string { return "meters" }

// SourceAssoc links a source to a meter, user, project or resource. Each
// row sets SourceID and exactly one of the other references.
type SourceAssoc struct {
	MeterID    *snowflake.ID `gorm:"index:ix_sourceassoc_meter_id"`
	Meter      *Meter        `gorm:"foreignKey:MeterID;constraint:OnDelete:CASCADE"`
	ProjectID  *string       `gorm:"type:varchar(255);index:ix_sourceassoc_project_id"`
	Project    *Project      `gorm:"foreignKey:ProjectID"`
	ResourceID *string       `gorm:"type:varchar(255);index:ix_sourceassoc_resource_id"`
	Resource   *Resource     `gorm:"foreignKey:ResourceID"`
	UserID     *string       `gorm:"type:varchar(255);index:ix_sourceassoc_user_id"`
	User       *User         `gorm:"foreignKey:UserID"`
	SourceID   string        `gorm:"type:varchar(255);not null;index:ix_sourceassoc_source_id"`
	Source     *Source       `gorm:"foreignKey:SourceID"`
}

func (SourceAssoc) TableName() string { return "sourceassoc" }
