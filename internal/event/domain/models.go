package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
)

// Event is a named occurrence. It owns its traits; deleting the event
// deletes them.
type Event struct {
	ID           snowflake.ID                 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UniqueNameID snowflake.ID                 `json:"unique_name_id" gorm:"column:unique_name_id;not null;index:ix_events_unique_name_id"`
	UniqueName   *uniquenamedomain.UniqueName `json:"-" gorm:"foreignKey:UniqueNameID;constraint:OnDelete:RESTRICT"`
	GeneratedAt  time.Time                    `json:"generated_at" gorm:"column:generated_at;not null;index:ix_events_generated_at"`
	Traits       []Trait                      `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }

// Trait stores one typed attribute of an event. Exactly one of the four
// value columns is non-null, the one selected by Type.
type Trait struct {
	ID       snowflake.ID                 `json:"id" gorm:"primaryKey;autoIncrement:false"`
	NameID   snowflake.ID                 `json:"name_id" gorm:"column:name_id;not null;index:ix_traits_name_id"`
	Name     *uniquenamedomain.UniqueName `json:"-" gorm:"foreignKey:NameID;constraint:OnDelete:RESTRICT"`
	EventID  snowflake.ID                 `json:"event_id" gorm:"column:event_id;not null;index:ix_traits_event_id"`
	Type     TraitType                    `json:"t_type" gorm:"column:t_type;not null;index:ix_traits_t_type"`
	String   *string                      `json:"t_string" gorm:"column:t_string;type:varchar(255);index:ix_traits_t_string"`
	Float    *float64                     `json:"t_float" gorm:"column:t_float;index:ix_traits_t_float"`
	Int      *int64                       `json:"t_int" gorm:"column:t_int;index:ix_traits_t_int"`
	Datetime *float64                     `json:"t_datetime" gorm:"column:t_datetime;index:ix_traits_t_datetime"`
}

// TableName sets the database table name.
func (Trait) TableName() string { return "traits" }
