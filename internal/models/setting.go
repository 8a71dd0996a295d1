package models

import "time"

// Known setting keys.
const (
	SettingRegNumberPrefix = "reg_number_prefix"
	SettingSchoolName      = "school_name"
)

// Setting is a single key/value row in the settings table.
type Setting struct {
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Description *string   `db:"description" json:"description,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
