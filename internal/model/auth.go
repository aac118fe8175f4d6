package model

import (
	"time"

	"github.com/google/uuid"
)

type AuthenticateRequest struct {
	IDToken   string  `json:"id_token" binding:"required"`
	FCMToken  *string `json:"fcm_token"`
	DeviceID  string  `json:"device_id" binding:"required"`
	UserAgent *string `json:"user_agent"`
}

type AuthenticateResponse struct {
	ID                         uuid.UUID  `json:"id"`
	FirebaseUID                string     `json:"firebase_uid"`
	SessionID                  uuid.UUID  `json:"session_id"`
	Username                   *string    `json:"username"`
	DisplayName                *string    `json:"display_name"`
	Bio                        *string    `json:"bio"`
	AvatarURL                  *string    `json:"avatar_url"`
	Gender                     *Gender    `json:"gender"`
	DOB                        *time.Time `json:"dob"`
	CurrentAuthProviderSlug    string     `json:"current_auth_provider_slug"`
	CurrentProviderInternalUID *string    `json:"current_provider_internal_uid"`
	IsVerified                 bool       `json:"is_verified"`
	Token                      string     `json:"token"`
	Exp                        int64      `json:"exp"`
}

// AuthUser is the principal established by the access guard.
type AuthUser struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// ExternalClaims is the canonical claim set produced by token verification.
// Identities preserves a deterministic order so identity merges replay the
// same way on every login.
type ExternalClaims struct {
	UID           string
	Email         *string
	EmailVerified bool
	DisplayName   *string
	PhotoURL      *string
	PhoneNumber   *string
	Expiration    time.Time
	ProviderID    string
	Identities    []ExternalIdentity
}

// ExternalIdentity is one (provider slug, provider uid) pair as asserted by
// the external provider, before normalization.
type ExternalIdentity struct {
	ProviderSlug  string
	ProviderUID   string
	RawIdentifier *string
}
