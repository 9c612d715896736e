package domain

import "github.com/bwmarrin/snowflake"

// UniqueName is an interned string. Event names and trait names are stored
// once here and referenced by id.
type UniqueName struct {
	ID  snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Key string       `json:"key" gorm:"type:varchar(255);not null;uniqueIndex:ux_unique_names_key"`
}

// TableName sets the database table name.
func (UniqueName) TableName() string { return "unique_names" }
