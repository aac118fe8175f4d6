package model

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderNonBinary      Gender = "non_binary"
	GenderTransgender    Gender = "transgender"
	GenderIntersex       Gender = "intersex"
	GenderPreferNotToSay Gender = "prefer_not_to_say"
	GenderOther          Gender = "other"
)

type User struct {
	ID          uuid.UUID
	FirebaseUID string
	Username    *string
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	Gender      *Gender
	DOB         *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// AuthIdentity is one linked login method. (Provider, ProviderUID) is unique
// across all users, so one external account can never map to two users.
type AuthIdentity struct {
	UserID      uuid.UUID
	Provider    string
	ProviderUID string
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// Session tracks one device. Active iff RevokedAt is nil and AuthExp is in the
// future.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	DeviceID  string
	FCMToken  *string
	UserAgent string
	IPAddress string
	AuthExp   time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProviderType struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}
