package trial

import "fmt"

// Schema returns the DDL for trial_request in the dialect of driver
// ("mysql", "sqlite", or "pgx").
func Schema(driver string) ([]string, error) {
	var id, ts, inline string
	switch driver {
	case "mysql":
		// MySQL has no CREATE INDEX IF NOT EXISTS; declare it inline.
		id, ts = "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY", "DATETIME(6)"
		inline = ",\n    INDEX trial_request_status_idx (status)"
	case "sqlite":
		id, ts = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	case "pgx":
		id, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	default:
		return nil, fmt.Errorf("trial schema: unsupported driver %q", driver)
	}
	table := `CREATE TABLE IF NOT EXISTS trial_request (
    id              ` + id + `,
    status          VARCHAR(32)  NOT NULL DEFAULT 'NEW',
    scheduled_date  ` + ts + `   NULL,
    desired_date    ` + ts + `   NOT NULL,
    notes           TEXT         NOT NULL,
    child_name      VARCHAR(128) NOT NULL,
    child_age       INT          NOT NULL,
    parent_name     VARCHAR(128) NOT NULL,
    parent_phone    VARCHAR(32)  NOT NULL,
    section_id      BIGINT       NOT NULL,
    branch_id       BIGINT       NOT NULL,
    source_city     VARCHAR(128) NOT NULL DEFAULT '',
    source_country  VARCHAR(8)   NOT NULL DEFAULT '',
    created_at      ` + ts + `   NOT NULL,
    updated_at      ` + ts + `   NULL` + inline + `
)`
	if driver == "mysql" {
		return []string{table}, nil
	}
	return []string{
		table,
		`CREATE INDEX IF NOT EXISTS trial_request_status_idx ON trial_request (status)`,
	}, nil
}
