// Package identity adapts the admin user tables to the auth service's
// credential and profile collaborators.
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/rbac"
	"taskplanner-admin/pkg/utils"
)

// Schema (Postgres):
//
//	CREATE TABLE users (
//	  id            uuid PRIMARY KEY,
//	  email         text UNIQUE NOT NULL,
//	  password_hash text NOT NULL
//	);
//	CREATE TABLE admin_users (
//	  id          uuid PRIMARY KEY,
//	  user_id     uuid UNIQUE NOT NULL REFERENCES users(id),
//	  role        text NOT NULL,
//	  permissions jsonb,            -- {"resource": ["action", ...]}
//	  is_active   boolean NOT NULL DEFAULT true
//	);
//	CREATE TABLE admin_permission_rules (
//	  role       text NOT NULL,
//	  resource   text NOT NULL,
//	  action     text NOT NULL,
//	  conditions jsonb
//	);

// PostgresDirectory implements auth.CredentialVerifier and auth.ProfileLoader.
type PostgresDirectory struct {
	db     *sql.DB
	hasher *Hasher
	// dummyHash is compared against for unknown emails so both paths cost one bcrypt run.
	dummyHash string
}

func NewPostgresDirectory(db *sql.DB, hasher *Hasher) (*PostgresDirectory, error) {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	dummy, err := hasher.Hash([]byte("not-a-real-password"))
	if err != nil {
		return nil, err
	}
	return &PostgresDirectory{db: db, hasher: hasher, dummyHash: dummy}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: identity %s: %v", auth.ErrStorageUnavailable, op, err)
}

func (d *PostgresDirectory) VerifyCredentials(ctx context.Context, email, password string) (auth.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}

	var id, hash string
	err := d.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE lower(email) = $1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		_ = d.hasher.Compare(d.dummyHash, []byte(password))
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, unavailable("lookup", err)
	}
	if err := d.hasher.Compare(hash, []byte(password)); err != nil {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return auth.Identity{UserID: id, Email: email}, nil
}

func (d *PostgresDirectory) LoadAdmin(ctx context.Context, userID string) (auth.AdminProfile, bool, error) {
	var (
		p        auth.AdminProfile
		role     string
		rawPerms sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT a.id, a.user_id, u.email, a.role, a.permissions, a.is_active
		FROM admin_users a
		JOIN users u ON u.id = a.user_id
		WHERE a.user_id = $1`, userID).Scan(&p.AdminID, &p.UserID, &p.Email, &role, &rawPerms, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.AdminProfile{}, false, nil
	}
	if err != nil {
		return auth.AdminProfile{}, false, unavailable("load admin", err)
	}

	// Unknown role strings are kept; the auth service treats them as not authorized.
	if r, ok := rbac.ParseRole(role); ok {
		p.Role = r
	} else {
		p.Role = rbac.Role(role)
	}
	perms, err := DecodePermissions(rawPerms.String)
	if err != nil {
		return auth.AdminProfile{}, false, invalidProfile(p.AdminID, err)
	}
	p.Permissions = perms
	return p, true, nil
}

func invalidProfile(adminID string, err error) error {
	return fmt.Errorf("%w: admin %s: %v", auth.ErrInvalidProfile, adminID, err)
}

// DecodePermissions converts the stored resource -> actions JSON into explicit overrides.
func DecodePermissions(raw string) (rbac.Overrides, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var m map[string][]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	out := rbac.OverridesFromActionMap(m)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadRules reads dynamic permission rules in one read-only transaction.
func (d *PostgresDirectory) LoadRules(ctx context.Context) ([]rbac.PermissionRule, error) {
	var rules []rbac.PermissionRule
	err := utils.WithTx(ctx, d.db, utils.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT role, resource, action, conditions FROM admin_permission_rules`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r    rbac.PermissionRule
				cond sql.NullString
			)
			if err := rows.Scan(&r.Role, &r.Resource, &r.Action, &cond); err != nil {
				return err
			}
			if cond.Valid && cond.String != "" {
				if err := json.Unmarshal([]byte(cond.String), &r.Conditions); err != nil {
					return fmt.Errorf("rule %s/%s/%s conditions: %w", r.Role, r.Resource, r.Action, err)
				}
			}
			rules = append(rules, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable("load rules", err)
	}
	return rules, nil
}
