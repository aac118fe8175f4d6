package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pulseapp/backend/internal/config"
	"github.com/pulseapp/backend/internal/model"
)

// TokenVerifier validates an opaque Firebase ID token and returns the
// canonical claim set. Implemented against the live JWKS endpoint in
// production and by deterministic fakes in tests.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*model.ExternalClaims, error)
}

// ErrTokenRejected marks signature/expiry/audience failures, as opposed to
// verifier-side failures (network, key fetch, malformed claim payload).
type ErrTokenRejected struct {
	Cause error
}

func (e *ErrTokenRejected) Error() string {
	return fmt.Sprintf("id token rejected: %v", e.Cause)
}

func (e *ErrTokenRejected) Unwrap() error { return e.Cause }

type FirebaseVerifier struct {
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
}

// firebasePayload is the raw claim shape of a Firebase ID token, decoded once
// at the verifier boundary.
type firebasePayload struct {
	Email         *string        `json:"email"`
	EmailVerified bool           `json:"email_verified"`
	Name          *string        `json:"name"`
	Picture       *string        `json:"picture"`
	PhoneNumber   *string        `json:"phone_number"`
	Firebase      firebaseDetail `json:"firebase"`
}

type firebaseDetail struct {
	SignInProvider string              `json:"sign_in_provider"`
	Identities     map[string][]string `json:"identities"`
}

func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("missing FIREBASE_PROJECT_ID")
	}

	timeout, err := time.ParseDuration(cfg.VerifyTimeout)
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid FIREBASE_VERIFY_TIMEOUT: %q", cfg.VerifyTimeout)
	}

	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = "https://securetoken.google.com/" + cfg.ProjectID
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover token issuer: %w", err)
	}

	return &FirebaseVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ProjectID}),
		timeout:  timeout,
	}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*model.ExternalClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.verifier.Verify(ctx, idToken)
	if err != nil {
		// go-oidc folds key-fetch failures into the verify error; those are
		// verifier-side problems, not a bad token.
		if ctx.Err() != nil || strings.Contains(err.Error(), "fetching keys") {
			return nil, fmt.Errorf("token verification did not complete: %w", err)
		}
		return nil, &ErrTokenRejected{Cause: err}
	}

	var payload firebasePayload
	if err := token.Claims(&payload); err != nil {
		return nil, fmt.Errorf("malformed claim payload: %w", err)
	}

	return mapClaims(token.Subject, token.Expiry, &payload)
}

// mapClaims converts the raw Firebase claim shape into the canonical claim
// set. Identities come back in sorted-slug order so downstream merges are
// deterministic.
func mapClaims(subject string, expiry time.Time, payload *firebasePayload) (*model.ExternalClaims, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("claim payload missing subject")
	}
	if expiry.IsZero() {
		return nil, fmt.Errorf("claim payload missing expiration")
	}

	provider := payload.Firebase.SignInProvider
	if provider == "" {
		provider = "unknown"
	}

	slugs := make([]string, 0, len(payload.Firebase.Identities))
	for slug := range payload.Firebase.Identities {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	identities := make([]model.ExternalIdentity, 0, len(slugs))
	for _, slug := range slugs {
		uids := payload.Firebase.Identities[slug]
		if len(uids) == 0 || uids[0] == "" {
			continue
		}

		var identifier *string
		switch slug {
		case "email":
			identifier = payload.Email
		case "phone":
			identifier = payload.PhoneNumber
		}

		identities = append(identities, model.ExternalIdentity{
			ProviderSlug:  slug,
			ProviderUID:   uids[0],
			RawIdentifier: identifier,
		})
	}

	return &model.ExternalClaims{
		UID:           subject,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		DisplayName:   payload.Name,
		PhotoURL:      payload.Picture,
		PhoneNumber:   payload.PhoneNumber,
		Expiration:    expiry,
		ProviderID:    provider,
		Identities:    identities,
	}, nil
}
