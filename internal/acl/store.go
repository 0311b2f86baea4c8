// internal/acl/store.go
//
// Small query helpers for Role‑Based Access Control.
//
// Context
// -------
// The CRM ACL model lives in the main database next to trial_request:
//
//	role        (id PK, name, enabled)
//	role_acl    (role_id, component, action, permitted)
//	user_role   (user_id, role_id)
//
// Components and middleware need fast answers to two questions:
//  1. Which *role names* does user X have?        → `UserRoles()`
//  2. Is role R permitted for component/action?   → `RoleAllowed()`
//
// These helpers accept a *sql.DB and perform simple parameterised queries.
// The funnel API mounts RequireRole("staff", "admin"); crmctl seeds the
// rows with Schema and GrantRole.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
// • Max line length 100 columns.
package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserRoles returns the role *names* bound to userID.  Disabled roles are
// filtered out.
func UserRoles(ctx context.Context, db *sql.DB, userID int64) ([]string, error) {
	const q = `SELECT r.name
                 FROM user_role ur
                 JOIN role r ON r.id = ur.role_id
                WHERE ur.user_id = ? AND r.enabled = TRUE`

	rows, err := db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]string, 0, 4)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// RoleAllowed reports whether *any* of the candidate roles is permitted for the
// given component + action.  It executes one query using IN (? … ?).
//
// Empty roles slice returns false, nil.
func RoleAllowed(ctx context.Context, db *sql.DB, roles []string, component, action string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	// Construct the IN clause placeholders dynamically.
	placeholders := make([]byte, 0, len(roles)*2)
	args := make([]any, 0, len(roles)+2)
	for i, r := range roles {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, r)
	}
	args = append(args, component, action)

	q := `SELECT 1
            FROM role_acl ra
            JOIN role r ON r.id = ra.role_id
           WHERE r.name IN (` + string(placeholders) + `)
             AND ra.component = ?
             AND ra.action   = ?
             AND ra.permitted = TRUE
           LIMIT 1` // early exit once we find a hit

	var dummy int
	err := db.QueryRowContext(ctx, q, args...).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Schema returns the ACL DDL for driver ("mysql", "sqlite", or "pgx").
func Schema(driver string) ([]string, error) {
	var id string
	switch driver {
	case "mysql":
		id = "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case "sqlite":
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
	case "pgx":
		id = "BIGSERIAL PRIMARY KEY"
	default:
		return nil, fmt.Errorf("acl schema: unsupported driver %q", driver)
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS role (
    id      ` + id + `,
    name    VARCHAR(64) NOT NULL UNIQUE,
    enabled BOOLEAN     NOT NULL DEFAULT TRUE
)`,
		`CREATE TABLE IF NOT EXISTS user_role (
    user_id BIGINT NOT NULL,
    role_id BIGINT NOT NULL,
    PRIMARY KEY (user_id, role_id)
)`,
		`CREATE TABLE IF NOT EXISTS role_acl (
    role_id   BIGINT      NOT NULL,
    component VARCHAR(64) NOT NULL,
    action    VARCHAR(64) NOT NULL,
    permitted BOOLEAN     NOT NULL DEFAULT TRUE,
    PRIMARY KEY (role_id, component, action)
)`,
	}, nil
}

// GrantRole binds role name to userID, creating the role when missing.
// Uses `?` placeholders and LastInsertId, so MySQL and SQLite only.
func GrantRole(ctx context.Context, db *sql.DB, userID int64, name string) error {
	var roleID int64
	err := db.QueryRowContext(ctx, `SELECT id FROM role WHERE name = ?`, name).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		res, ierr := db.ExecContext(ctx, `INSERT INTO role (name, enabled) VALUES (?, TRUE)`, name)
		if ierr != nil {
			return fmt.Errorf("create role %q: %w", name, ierr)
		}
		if roleID, ierr = res.LastInsertId(); ierr != nil {
			return fmt.Errorf("create role %q: %w", name, ierr)
		}
	} else if err != nil {
		return fmt.Errorf("lookup role %q: %w", name, err)
	}

	var exists int
	err = db.QueryRowContext(ctx,
		`SELECT 1 FROM user_role WHERE user_id = ? AND role_id = ?`, userID, roleID).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup grant: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO user_role (user_id, role_id) VALUES (?, ?)`, userID, roleID); err != nil {
		return fmt.Errorf("grant role %q: %w", name, err)
	}
	return nil
}
