package models

import (
	"time"
)

// UsersCollection holds one profile document per auth uid.
const UsersCollection = "users"

const (
	ProfileFieldName      = "name"
	ProfileFieldEmail     = "email"
	ProfileFieldPhone     = "phone"
	ProfileFieldPushToken = "pushToken"
	ProfileFieldCreatedAt = "createdAt"
)

type Profile struct {
	UID       string     `json:"uid"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	PushToken string     `json:"-"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	// IsDefault reports that no profile document exists and every field
	// was filled from the default policy.
	IsDefault bool `json:"isDefault"`
}
