package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

type User struct {
	ID           string
	Email        string
	Username     *string
	PasswordHash []byte
	Name         string
	Role         UserRole
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one login on one device. At most one row per user has IsActive set.
type Session struct {
	ID               string
	UserID           string
	SessionTokenHash []byte
	DeviceID         string
	IPAddress        string
	UserAgent        string
	Browser          string
	OS               string
	IsActive         bool
	LastActivity     time.Time
	CreatedAt        time.Time
	ExpiresAt        time.Time
}
