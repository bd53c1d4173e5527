package api

import (
	"database/sql"
	"fmt"
)

// columnExists checks if a column exists on a given table (SQLite PRAGMA table_info)
func columnExists(db *sql.DB, table string, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var cid int
	var name string
	var ctype string
	var notnull int
	var dflt sql.NullString
	var pk int

	for rows.Next() {
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, nil
}

// MigrateAddTaskReminderColumn ensures the tasks table has a
// last_reminded_at column for databases created before the due-date
// reminder worker existed (idempotent).
func MigrateAddTaskReminderColumn(db *sql.DB) error {
	exists, err := columnExists(db, "tasks", "last_reminded_at")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec("ALTER TABLE tasks ADD COLUMN last_reminded_at DATETIME"); err != nil {
			return err
		}
	}
	return nil
}
