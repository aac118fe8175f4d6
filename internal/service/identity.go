package service

import (
	"time"

	"github.com/pulseapp/backend/internal/model"
)

// CanonicalIdentity is one login method ready for persistence.
type CanonicalIdentity struct {
	Provider      string
	ProviderUID   string
	RawIdentifier *string
	VerifiedAt    *time.Time
}

// NormalizeProviderSlug maps Firebase's provider naming onto the internal
// taxonomy. Firebase reports email/password accounts under "email".
func NormalizeProviderSlug(slug string) string {
	if slug == "email" {
		return "password"
	}
	return slug
}

// NormalizeIdentities maps the asserted identities to canonical records and
// applies the verification policy:
//
//	google.com, apple.com, phone  -> verified on every login
//	password                      -> verified only when the email is verified
//	anything else                 -> never verified here
//
// The returned order matches the input order.
func NormalizeIdentities(claims *model.ExternalClaims, now time.Time) []CanonicalIdentity {
	out := make([]CanonicalIdentity, 0, len(claims.Identities))
	for _, ident := range claims.Identities {
		slug := NormalizeProviderSlug(ident.ProviderSlug)

		var verifiedAt *time.Time
		switch slug {
		case "google.com", "apple.com", "phone":
			t := now
			verifiedAt = &t
		case "password":
			if claims.EmailVerified {
				t := now
				verifiedAt = &t
			}
		}

		out = append(out, CanonicalIdentity{
			Provider:      slug,
			ProviderUID:   ident.ProviderUID,
			RawIdentifier: ident.RawIdentifier,
			VerifiedAt:    verifiedAt,
		})
	}
	return out
}
