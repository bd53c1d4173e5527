package api

import (
	"database/sql"
	"fmt"
	"log"

	"pomo/internal/models"
)

// ProcessDueTaskReminders notifies users about open tasks whose due date
// has passed. A task is reminded at most once per due date: last_reminded_at
// is stamped immediately so repeated worker runs stay quiet.
func ProcessDueTaskReminders(db *sql.DB) error {
	query := `
		SELECT id, user_id, title, description, due_date
		FROM tasks
		WHERE status IN ('pending', 'in_progress')
			AND due_date IS NOT NULL
			AND datetime(due_date) <= datetime('now')
			AND (last_reminded_at IS NULL OR datetime(last_reminded_at) < datetime(due_date))
	`

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	due := []models.Task{}
	for rows.Next() {
		var t models.Task
		err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.DueDate)
		if err != nil {
			log.Printf("Error scanning task for reminder: %v", err)
			continue
		}
		due = append(due, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range due {
		if err := sendTaskReminder(db, t); err != nil {
			log.Printf("Failed to send reminder for task %d: %v", t.ID, err)
		}
	}
	return nil
}

func sendTaskReminder(db *sql.DB, t models.Task) error {
	payload := PushPayload{
		Title: "Task due: " + t.Title,
		Body:  "Your task has reached its due date.",
		Tag:   fmt.Sprintf("pomo-due-%d", t.ID),
		Data:  map[string]interface{}{"task_id": t.ID},
	}
	if t.Description != nil && *t.Description != "" {
		payload.Body = *t.Description
	}

	if err := SendPushToUser(db, t.UserID, payload); err != nil {
		log.Printf("Push reminder for task %d: %v", t.ID, err)
	}

	// Email is best-effort and only when SMTP is configured
	var email string
	err := db.QueryRow("SELECT email FROM users WHERE id = ?", t.UserID).Scan(&email)
	if err == nil && email != "" {
		if err := SendTaskReminderEmail(t, email); err != nil {
			log.Printf("Failed to send email reminder for task %d: %v", t.ID, err)
		}
	}

	_, err = db.Exec("UPDATE tasks SET last_reminded_at = CURRENT_TIMESTAMP WHERE id = ?", t.ID)
	return err
}
