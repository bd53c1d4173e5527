package api

import (
	"database/sql"
	"log"

	"pomo/internal/models"

	"github.com/gofiber/fiber/v2"
)

const preferencesColumns = `id, user_id, work_duration, short_break_duration,
	long_break_duration, pomodoros_until_long_break, theme, color_scheme,
	minimalist_mode, notifications_enabled, sound_enabled, created_at, updated_at`

func scanPreferences(row rowScanner) (models.UserPreferences, error) {
	var p models.UserPreferences
	err := row.Scan(
		&p.ID, &p.UserID, &p.WorkDuration, &p.ShortBreakDuration,
		&p.LongBreakDuration, &p.PomodorosUntilLongBreak, &p.Theme,
		&p.ColorScheme, &p.MinimalistMode, &p.NotificationsEnabled,
		&p.SoundEnabled, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func getPreferencesByUserID(db *sql.DB, userID int) (models.UserPreferences, error) {
	return scanPreferences(db.QueryRow("SELECT "+preferencesColumns+" FROM user_preferences WHERE user_id = ?", userID))
}

func GetUserPreferencesHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.GetUserPreferencesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		prefs, err := getPreferencesByUserID(db, req.UserID)
		if err == sql.ErrNoRows {
			// createUser installs the row transactionally, so a missing row
			// means the store invariant is broken, not a caller mistake.
			log.Printf("integrity violation: user %d has no preferences row", req.UserID)
			return fiber.NewError(fiber.StatusNotFound, "Preferences not found")
		}
		if err != nil {
			return err
		}

		return c.JSON(prefs)
	}
}

func UpdateUserPreferencesHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.UpdateUserPreferencesRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		positives := map[string]*int{
			"work_duration":              req.WorkDuration,
			"short_break_duration":       req.ShortBreakDuration,
			"long_break_duration":        req.LongBreakDuration,
			"pomodoros_until_long_break": req.PomodorosUntilLongBreak,
		}
		for field, v := range positives {
			if v != nil && *v <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, field+": must be a positive integer")
			}
		}
		if req.Theme != nil && !models.ValidThemes[*req.Theme] {
			return fiber.NewError(fiber.StatusBadRequest, "theme: must be light, dark or system")
		}

		prefs, err := getPreferencesByUserID(db, req.UserID)
		if err == sql.ErrNoRows {
			log.Printf("integrity violation: user %d has no preferences row", req.UserID)
			return fiber.NewError(fiber.StatusNotFound, "Preferences not found")
		}
		if err != nil {
			return err
		}

		// Partial patch: only supplied fields change
		if req.WorkDuration != nil {
			prefs.WorkDuration = *req.WorkDuration
		}
		if req.ShortBreakDuration != nil {
			prefs.ShortBreakDuration = *req.ShortBreakDuration
		}
		if req.LongBreakDuration != nil {
			prefs.LongBreakDuration = *req.LongBreakDuration
		}
		if req.PomodorosUntilLongBreak != nil {
			prefs.PomodorosUntilLongBreak = *req.PomodorosUntilLongBreak
		}
		if req.Theme != nil {
			prefs.Theme = *req.Theme
		}
		if req.ColorScheme != nil {
			prefs.ColorScheme = *req.ColorScheme
		}
		if req.MinimalistMode != nil {
			prefs.MinimalistMode = *req.MinimalistMode
		}
		if req.NotificationsEnabled != nil {
			prefs.NotificationsEnabled = *req.NotificationsEnabled
		}
		if req.SoundEnabled != nil {
			prefs.SoundEnabled = *req.SoundEnabled
		}

		_, err = db.Exec(
			`UPDATE user_preferences SET work_duration = ?, short_break_duration = ?,
				long_break_duration = ?, pomodoros_until_long_break = ?, theme = ?,
				color_scheme = ?, minimalist_mode = ?, notifications_enabled = ?,
				sound_enabled = ?, updated_at = CURRENT_TIMESTAMP
			WHERE user_id = ?`,
			prefs.WorkDuration, prefs.ShortBreakDuration, prefs.LongBreakDuration,
			prefs.PomodorosUntilLongBreak, prefs.Theme, prefs.ColorScheme,
			prefs.MinimalistMode, prefs.NotificationsEnabled, prefs.SoundEnabled,
			req.UserID,
		)
		if err != nil {
			return err
		}

		updated, err := getPreferencesByUserID(db, req.UserID)
		if err != nil {
			return err
		}

		return c.JSON(updated)
	}
}
