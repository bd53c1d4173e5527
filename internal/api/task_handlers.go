package api

import (
	"database/sql"
	"unicode/utf8"

	"pomo/internal/models"

	"github.com/gofiber/fiber/v2"
)

const taskColumns = `id, user_id, title, description, priority, status, due_date,
	estimated_pomodoros, completed_pomodoros, is_recurring, recurrence_pattern,
	parent_task_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.DueDate, &t.EstimatedPomodoros, &t.CompletedPomodoros, &t.IsRecurring,
		&t.RecurrencePattern, &t.ParentTaskID, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func getTaskByID(db *sql.DB, taskID int) (models.Task, error) {
	return scanTask(db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", taskID))
}

func CreateTaskHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.CreateTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		if n := utf8.RuneCountInString(req.Title); n < 1 || n > 200 {
			return fiber.NewError(fiber.StatusBadRequest, "title: must be 1-200 characters")
		}
		priority := req.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
		if !models.ValidPriorities[priority] {
			return fiber.NewError(fiber.StatusBadRequest, "priority: must be low, medium, high or urgent")
		}
		if req.EstimatedPomodoros != nil && *req.EstimatedPomodoros <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "estimated_pomodoros: must be a positive integer")
		}

		// A recurrence pattern implies the task is recurring
		isRecurring := req.IsRecurring
		if req.RecurrencePattern != nil {
			if !models.ValidRecurrencePatterns[*req.RecurrencePattern] {
				return fiber.NewError(fiber.StatusBadRequest, "recurrence_pattern: must be daily, weekly, monthly or yearly")
			}
			isRecurring = true
		}

		// Parent check and insert share a transaction so a concurrent
		// delete between them cannot surface as a raw FK error.
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		// Parent must exist and belong to the same user; cross-user
		// parenting is forbidden.
		if req.ParentTaskID != nil {
			var parentUserID int
			err := tx.QueryRow("SELECT user_id FROM tasks WHERE id = ?", *req.ParentTaskID).Scan(&parentUserID)
			if err == sql.ErrNoRows || (err == nil && parentUserID != req.UserID) {
				return fiber.NewError(fiber.StatusNotFound, "Parent task not found")
			}
			if err != nil {
				return err
			}
		}

		result, err := tx.Exec(
			`INSERT INTO tasks (user_id, title, description, priority, due_date,
				estimated_pomodoros, is_recurring, recurrence_pattern, parent_task_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.UserID, req.Title, req.Description, priority, req.DueDate,
			req.EstimatedPomodoros, isRecurring, req.RecurrencePattern, req.ParentTaskID,
		)
		if err != nil {
			return err
		}

		taskID, _ := result.LastInsertId()
		if err := tx.Commit(); err != nil {
			return err
		}
		task, err := getTaskByID(db, int(taskID))
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(task)
	}
}

func GetTasksHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.GetTasksRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := requireOwnUser(c, req.UserID); err != nil {
			return err
		}

		query := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ?"
		args := []interface{}{req.UserID}

		if req.Status != nil {
			if !models.ValidStatuses[*req.Status] {
				return fiber.NewError(fiber.StatusBadRequest, "status: invalid value")
			}
			query += " AND status = ?"
			args = append(args, *req.Status)
		}
		if req.Priority != nil {
			if !models.ValidPriorities[*req.Priority] {
				return fiber.NewError(fiber.StatusBadRequest, "priority: invalid value")
			}
			query += " AND priority = ?"
			args = append(args, *req.Priority)
		}
		if req.ParentTaskID.Set {
			if req.ParentTaskID.Valid {
				query += " AND parent_task_id = ?"
				args = append(args, req.ParentTaskID.Value)
			} else {
				// Explicit null filter selects root tasks only
				query += " AND parent_task_id IS NULL"
			}
		}

		query += " ORDER BY created_at ASC, id ASC"

		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		tasks := []models.Task{}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}

		return c.JSON(tasks)
	}
}

func UpdateTaskHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var req models.UpdateTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		// Read and write share a transaction, and the write is conditioned
		// on the status the validation saw, so transition legality holds at
		// commit: a caller who lost a concurrent status race gets a Conflict.
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		task, err := scanTask(tx.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", req.ID))
		if err == sql.ErrNoRows {
			return fiber.NewError(fiber.StatusNotFound, "Task not found")
		}
		if err != nil {
			return err
		}
		if task.UserID != userID {
			return fiber.NewError(fiber.StatusForbidden, "Not authorized")
		}
		prevStatus := task.Status

		// Partial patch: only supplied fields change
		if req.Title != nil {
			if n := utf8.RuneCountInString(*req.Title); n < 1 || n > 200 {
				return fiber.NewError(fiber.StatusBadRequest, "title: must be 1-200 characters")
			}
			task.Title = *req.Title
		}
		if req.Description.Set {
			task.Description = req.Description.Ptr()
		}
		if req.Priority != nil {
			if !models.ValidPriorities[*req.Priority] {
				return fiber.NewError(fiber.StatusBadRequest, "priority: invalid value")
			}
			task.Priority = *req.Priority
		}
		if req.Status != nil {
			if !models.ValidStatuses[*req.Status] {
				return fiber.NewError(fiber.StatusBadRequest, "status: invalid value")
			}
			if !models.CanTransition(task.Status, *req.Status) {
				return fiber.NewError(fiber.StatusConflict, "Illegal status transition from "+task.Status+" to "+*req.Status)
			}
			task.Status = *req.Status
		}
		if req.DueDate.Set {
			task.DueDate = req.DueDate.Ptr()
		}
		if req.EstimatedPomodoros.Set {
			if req.EstimatedPomodoros.Valid && req.EstimatedPomodoros.Value <= 0 {
				return fiber.NewError(fiber.StatusBadRequest, "estimated_pomodoros: must be a positive integer")
			}
			task.EstimatedPomodoros = req.EstimatedPomodoros.Ptr()
		}
		if req.IsRecurring != nil {
			task.IsRecurring = *req.IsRecurring
			if !task.IsRecurring {
				task.RecurrencePattern = nil
			}
		}
		if req.RecurrencePattern.Set {
			if req.RecurrencePattern.Valid {
				if !models.ValidRecurrencePatterns[req.RecurrencePattern.Value] {
					return fiber.NewError(fiber.StatusBadRequest, "recurrence_pattern: must be daily, weekly, monthly or yearly")
				}
				// Setting a pattern implies the task is recurring
				task.IsRecurring = true
			}
			task.RecurrencePattern = req.RecurrencePattern.Ptr()
		}

		result, err := tx.Exec(
			`UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?,
				due_date = ?, estimated_pomodoros = ?, is_recurring = ?,
				recurrence_pattern = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`,
			task.Title, task.Description, task.Priority, task.Status,
			task.DueDate, task.EstimatedPomodoros, task.IsRecurring,
			task.RecurrencePattern, task.ID, prevStatus,
		)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fiber.NewError(fiber.StatusConflict, "Task status changed concurrently")
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		updated, err := getTaskByID(db, task.ID)
		if err != nil {
			return err
		}

		return c.JSON(updated)
	}
}

// DeleteTaskHandler removes a task. The subtask subtree goes with it
// (schema-level cascade on parent_task_id) and any pomodoro sessions that
// referenced a deleted task keep existing with task_id nulled.
func DeleteTaskHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var req models.DeleteTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var ownerID int
		err := db.QueryRow("SELECT user_id FROM tasks WHERE id = ?", req.TaskID).Scan(&ownerID)
		if err == sql.ErrNoRows {
			return fiber.NewError(fiber.StatusNotFound, "Task not found")
		}
		if err != nil {
			return err
		}
		if ownerID != userID {
			return fiber.NewError(fiber.StatusForbidden, "Not authorized")
		}

		result, err := db.Exec("DELETE FROM tasks WHERE id = ? AND user_id = ?", req.TaskID, userID)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Task not found")
		}

		return c.JSON(fiber.Map{"success": true})
	}
}
