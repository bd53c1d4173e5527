package api

import (
	"database/sql"

	"pomo/internal/models"

	"github.com/gofiber/fiber/v2"
)

const sessionColumns = `id, user_id, task_id, type, duration_minutes, completed,
	started_at, completed_at, created_at`

func scanSession(row rowScanner) (models.PomodoroSession, error) {
	var s models.PomodoroSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.TaskID, &s.Type, &s.DurationMinutes,
		&s.Completed, &s.StartedAt, &s.CompletedAt, &s.CreatedAt,
	)
	return s, err
}

func getSessionByID(db *sql.DB, sessionID int) (models.PomodoroSession, error) {
	return scanSession(db.QueryRow("SELECT "+sessionColumns+" FROM pomodoro_sessions WHERE id = ?", sessionID))
}

func StartPomodoroHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.StartPomodoroRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		sessionType := req.Type
		if sessionType == "" {
			sessionType = models.PomodoroWork
		}
		if !models.ValidPomodoroTypes[sessionType] {
			return fiber.NewError(fiber.StatusBadRequest, "type: must be work, short_break or long_break")
		}

		duration := 25
		if req.DurationMinutes != nil {
			if *req.DurationMinutes <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "duration_minutes: must be a positive integer")
			}
			duration = *req.DurationMinutes
		}

		// The ownership check and insert share a transaction so a concurrent
		// task delete between them cannot surface as a raw FK error.
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		// Linked task must exist and belong to the same user
		if req.TaskID != nil {
			var taskUserID int
			err := tx.QueryRow("SELECT user_id FROM tasks WHERE id = ?", *req.TaskID).Scan(&taskUserID)
			if err == sql.ErrNoRows || (err == nil && taskUserID != req.UserID) {
				return fiber.NewError(fiber.StatusNotFound, "Task not found")
			}
			if err != nil {
				return err
			}
		}

		result, err := tx.Exec(
			"INSERT INTO pomodoro_sessions (user_id, task_id, type, duration_minutes) VALUES (?, ?, ?, ?)",
			req.UserID, req.TaskID, sessionType, duration,
		)
		if err != nil {
			return err
		}

		sessionID, _ := result.LastInsertId()
		if err := tx.Commit(); err != nil {
			return err
		}
		session, err := getSessionByID(db, int(sessionID))
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// CompletePomodoroHandler marks a session completed, exactly once. The
// conditional UPDATE serializes concurrent completions: whichever caller
// flips completed first wins, every other caller gets a Conflict and the
// linked task's counter moves by at most one.
func CompletePomodoroHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var req models.CompletePomodoroRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var sessionUserID int
		var taskID *int
		var sessionType string
		err = tx.QueryRow(
			"SELECT user_id, task_id, type FROM pomodoro_sessions WHERE id = ?",
			req.SessionID,
		).Scan(&sessionUserID, &taskID, &sessionType)
		if err == sql.ErrNoRows {
			return fiber.NewError(fiber.StatusNotFound, "Session not found")
		}
		if err != nil {
			return err
		}
		if sessionUserID != userID {
			return fiber.NewError(fiber.StatusForbidden, "Not authorized")
		}

		result, err := tx.Exec(
			"UPDATE pomodoro_sessions SET completed = 1, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND completed = 0",
			req.SessionID,
		)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fiber.NewError(fiber.StatusConflict, "Session already completed")
		}

		// Only completed work counts toward a task's pomodoros; breaks don't
		if taskID != nil && sessionType == models.PomodoroWork {
			_, err = tx.Exec(
				"UPDATE tasks SET completed_pomodoros = completed_pomodoros + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
				*taskID,
			)
			if err != nil {
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		session, err := getSessionByID(db, req.SessionID)
		if err != nil {
			return err
		}

		return c.JSON(session)
	}
}

func GetPomodoroHistoryHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.GetPomodoroHistoryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		if req.FromDate != nil && req.ToDate != nil && req.FromDate.After(*req.ToDate) {
			return fiber.NewError(fiber.StatusBadRequest, "from_date: must not be after to_date")
		}

		query := "SELECT " + sessionColumns + " FROM pomodoro_sessions WHERE user_id = ?"
		args := []interface{}{req.UserID}

		if req.TaskID != nil {
			query += " AND task_id = ?"
			args = append(args, *req.TaskID)
		}
		// datetime() normalizes both operands to UTC; stored timestamps and
		// bound parameters otherwise carry different text formats.
		if req.FromDate != nil {
			query += " AND datetime(started_at) >= datetime(?)"
			args = append(args, *req.FromDate)
		}
		if req.ToDate != nil {
			query += " AND datetime(started_at) <= datetime(?)"
			args = append(args, *req.ToDate)
		}

		query += " ORDER BY started_at ASC, id ASC"

		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		sessions := []models.PomodoroSession{}
		for rows.Next() {
			s, err := scanSession(rows)
			if err != nil {
				return err
			}
			sessions = append(sessions, s)
		}

		return c.JSON(sessions)
	}
}
