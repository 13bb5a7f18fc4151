package models

import "time"

type SystemSetting struct {
	Key         string
	Value       string
	Description *string
	UpdatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
