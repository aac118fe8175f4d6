package service

import (
	"testing"
	"time"

	"github.com/pulseapp/backend/internal/model"
)

func strPtr(s string) *string { return &s }

func TestNormalizeProviderSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"email", "password"},
		{"google.com", "google.com"},
		{"apple.com", "apple.com"},
		{"phone", "phone"},
		{"github.com", "github.com"},
	}

	for _, tt := range tests {
		if got := NormalizeProviderSlug(tt.in); got != tt.want {
			t.Errorf("NormalizeProviderSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVerificationPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		slug          string
		emailVerified bool
		wantVerified  bool
	}{
		{"google-always", "google.com", false, true},
		{"apple-always", "apple.com", false, true},
		{"phone-always", "phone", false, true},
		{"password-verified-email", "email", true, true},
		{"password-unverified-email", "email", false, false},
		{"unknown-never", "github.com", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &model.ExternalClaims{
				UID:           "ext-1",
				EmailVerified: tt.emailVerified,
				Identities: []model.ExternalIdentity{
					{ProviderSlug: tt.slug, ProviderUID: "uid-1"},
				},
			}

			got := NormalizeIdentities(claims, now)
			if len(got) != 1 {
				t.Fatalf("expected 1 identity, got %d", len(got))
			}
			if tt.wantVerified {
				if got[0].VerifiedAt == nil || !got[0].VerifiedAt.Equal(now) {
					t.Errorf("expected verified_at = now, got %v", got[0].VerifiedAt)
				}
			} else if got[0].VerifiedAt != nil {
				t.Errorf("expected nil verified_at, got %v", got[0].VerifiedAt)
			}
		})
	}
}

func TestNormalizeIdentitiesPreservesOrderAndIdentifiers(t *testing.T) {
	now := time.Now()
	claims := &model.ExternalClaims{
		UID:           "ext-1",
		EmailVerified: true,
		Identities: []model.ExternalIdentity{
			{ProviderSlug: "email", ProviderUID: "jane@example.com", RawIdentifier: strPtr("jane@example.com")},
			{ProviderSlug: "google.com", ProviderUID: "g-1"},
		},
	}

	got := NormalizeIdentities(claims, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(got))
	}
	if got[0].Provider != "password" || got[1].Provider != "google.com" {
		t.Errorf("unexpected providers: %q, %q", got[0].Provider, got[1].Provider)
	}
	if got[0].RawIdentifier == nil || *got[0].RawIdentifier != "jane@example.com" {
		t.Errorf("raw identifier dropped during normalization")
	}
}
