package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulseapp/backend/internal/model"
)

// ErrUserDeactivated aborts a login against a soft-deleted user before any
// identity or session row is written.
var ErrUserDeactivated = errors.New("user deactivated")

// IdentityUpsert is one canonical identity to merge. VerifiedAt nil means the
// login carries no verification signal for this provider.
type IdentityUpsert struct {
	Provider    string
	ProviderUID string
	VerifiedAt  *time.Time
}

type LoginParams struct {
	FirebaseUID string
	DisplayName *string
	AvatarURL   *string
	Identities  []IdentityUpsert
	DeviceID    string
	FCMToken    *string
	UserAgent   string
	IPAddress   string
	AuthExp     time.Time
}

const userColumns = `
	u.id,
	u.firebase_uid,
	un.username,
	u.display_name,
	u.bio,
	u.avatar_url,
	u.gender,
	u.dob,
	u.created_at,
	u.updated_at,
	u.deleted_at
`

// ReconcileLogin runs the whole login write path in one transaction: upsert
// the user, refuse deactivated accounts, scope RLS to the merged user, merge
// identities, and revive or create the device session. Every statement is an
// idempotent upsert, so callers may retry the entire login on failure.
func (db *Postgres) ReconcileLogin(ctx context.Context, params LoginParams) (*model.User, uuid.UUID, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, uuid.Nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// ON CONFLICT keeps concurrent logins for the same firebase_uid down to
	// exactly one row. Profile fields refresh only when the new claim carries
	// a value, so a provider omitting the name never erases a stored one.
	query := `
		WITH upserted_user AS (
			INSERT INTO users (firebase_uid, display_name, avatar_url)
			VALUES ($1, $2, $3)
			ON CONFLICT (firebase_uid) DO UPDATE
			SET display_name = COALESCE(EXCLUDED.display_name, users.display_name),
			    avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
			    updated_at = NOW()
			RETURNING *
		)
		SELECT ` + userColumns + `
		FROM upserted_user u
		LEFT JOIN usernames un ON un.user_id = u.id
	`
	user, err := scanUser(tx.QueryRow(ctx, query, params.FirebaseUID, params.DisplayName, params.AvatarURL))
	if err != nil {
		return nil, uuid.Nil, err
	}

	if user.DeletedAt != nil {
		return nil, uuid.Nil, ErrUserDeactivated
	}

	// Transaction-scoped only: set_config(..., true) must never outlive this
	// transaction on a pooled connection.
	if err := setUserContext(ctx, tx, user.ID); err != nil {
		return nil, uuid.Nil, err
	}

	for _, ident := range params.Identities {
		_, err := tx.Exec(ctx, `
			INSERT INTO auth_identities (user_id, provider, provider_uid, verified_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (provider, provider_uid) DO UPDATE
			SET verified_at = COALESCE(auth_identities.verified_at, EXCLUDED.verified_at)
		`, user.ID, ident.Provider, ident.ProviderUID, ident.VerifiedAt)
		if err != nil {
			return nil, uuid.Nil, err
		}
	}

	var sessionID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO users_sessions (user_id, device_id, fcm_token, user_agent, ip_address, auth_exp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, device_id) DO UPDATE
		SET fcm_token = COALESCE(EXCLUDED.fcm_token, users_sessions.fcm_token),
		    user_agent = EXCLUDED.user_agent,
		    ip_address = EXCLUDED.ip_address,
		    auth_exp = EXCLUDED.auth_exp,
		    revoked_at = NULL,
		    updated_at = NOW()
		RETURNING id
	`, user.ID, params.DeviceID, params.FCMToken, params.UserAgent, params.IPAddress, params.AuthExp).Scan(&sessionID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, uuid.Nil, err
	}

	return user, sessionID, nil
}

// BeginRequestTx opens the per-request transaction and scopes RLS to the
// acting user. The caller owns commit/rollback.
func (db *Postgres) BeginRequestTx(ctx context.Context, userID uuid.UUID) (pgx.Tx, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	if err := setUserContext(ctx, tx, userID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// SessionActive reports whether the backing session row is still live. Runs
// inside the request transaction, so RLS also enforces ownership.
func (db *Postgres) SessionActive(ctx context.Context, tx pgx.Tx, sessionID, userID uuid.UUID) (bool, error) {
	var found int
	err := tx.QueryRow(ctx, `
		SELECT 1
		FROM users_sessions
		WHERE id = $1
		  AND user_id = $2
		  AND revoked_at IS NULL
		  AND auth_exp > NOW()
	`, sessionID, userID).Scan(&found)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RevokeSession marks the session inactive. Idempotent; revoking an already
// revoked or missing session is not an error.
func (db *Postgres) RevokeSession(ctx context.Context, sessionID, userID uuid.UUID) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := setUserContext(ctx, tx, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users_sessions
		SET revoked_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`, sessionID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetUserByID reads one user through an already-open request transaction.
func (db *Postgres) GetUserByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN usernames un ON un.user_id = u.id
		WHERE u.id = $1 AND u.deleted_at IS NULL
	`
	return scanUser(tx.QueryRow(ctx, query, userID))
}

func (db *Postgres) ListActiveProviders(ctx context.Context) ([]model.ProviderType, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT slug, name
		FROM provider_types
		WHERE is_active = TRUE
		ORDER BY
			CASE WHEN slug = 'password' THEN 1 ELSE 2 END,
			name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []model.ProviderType
	for rows.Next() {
		var p model.ProviderType
		if err := rows.Scan(&p.Slug, &p.Name); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func setUserContext(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT set_config('app.current_user_id', $1, true)`, userID.String())
	return err
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var gender *string
	err := row.Scan(
		&user.ID,
		&user.FirebaseUID,
		&user.Username,
		&user.DisplayName,
		&user.Bio,
		&user.AvatarURL,
		&gender,
		&user.DOB,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		g := model.Gender(*gender)
		user.Gender = &g
	}
	return &user, nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
