package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pomo/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestCreateTaskDefaults(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	var task models.Task
	status := rpc(t, app, "createTask", token, models.CreateTaskRequest{
		UserID: user.ID,
		Title:  "Write report",
	}, &task)
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", status)
	}

	if task.Priority != models.PriorityMedium {
		t.Fatalf("Expected default priority medium, got %s", task.Priority)
	}
	if task.Status != models.StatusPending {
		t.Fatalf("Expected default status pending, got %s", task.Status)
	}
	if task.CompletedPomodoros != 0 {
		t.Fatalf("Expected completed_pomodoros 0, got %d", task.CompletedPomodoros)
	}
	if task.IsRecurring || task.RecurrencePattern != nil {
		t.Fatalf("Expected non-recurring task, got %+v", task)
	}
	if task.Description != nil || task.DueDate != nil || task.ParentTaskID != nil {
		t.Fatalf("Expected nullable fields to be null, got %+v", task)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	cases := []models.CreateTaskRequest{
		{UserID: user.ID, Title: ""},
		{UserID: user.ID, Title: "x", Priority: "extreme"},
		{UserID: user.ID, Title: "x", EstimatedPomodoros: intPtr(0)},
		{UserID: user.ID, Title: "x", RecurrencePattern: strPtr("hourly")},
	}
	for i, c := range cases {
		if status := rpc(t, app, "createTask", token, c, nil); status != http.StatusBadRequest {
			t.Fatalf("case %d: expected status 400, got %d", i, status)
		}
	}
}

func TestCreateTaskRecurrencePatternImpliesRecurring(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	var task models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{
		UserID:            user.ID,
		Title:             "Water plants",
		RecurrencePattern: strPtr("weekly"),
	}, &task)

	if !task.IsRecurring {
		t.Fatal("Recurrence pattern must imply is_recurring")
	}
	if task.RecurrencePattern == nil || *task.RecurrencePattern != "weekly" {
		t.Fatalf("Expected weekly pattern, got %+v", task.RecurrencePattern)
	}
}

func TestCreateTaskParent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")
	otherToken, otherUser := registerUser(t, app, "eve@example.com", "evelyn")

	var parent models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "Parent"}, &parent)

	var child models.Task
	status := rpc(t, app, "createTask", token, models.CreateTaskRequest{
		UserID:       user.ID,
		Title:        "Child",
		ParentTaskID: &parent.ID,
	}, &child)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 for valid parent, got %d", status)
	}
	if child.ParentTaskID == nil || *child.ParentTaskID != parent.ID {
		t.Fatalf("Expected parent_task_id %d, got %+v", parent.ID, child.ParentTaskID)
	}

	// Missing parent
	missing := 99999
	status = rpc(t, app, "createTask", token, models.CreateTaskRequest{
		UserID:       user.ID,
		Title:        "Orphan",
		ParentTaskID: &missing,
	}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for missing parent, got %d", status)
	}

	// Cross-user parenting is forbidden and reads as NotFound
	status = rpc(t, app, "createTask", otherToken, models.CreateTaskRequest{
		UserID:       otherUser.ID,
		Title:        "Stolen child",
		ParentTaskID: &parent.ID,
	}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for cross-user parent, got %d", status)
	}
}

func TestGetTasksFilters(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")
	otherToken, otherUser := registerUser(t, app, "bob@example.com", "bobby")

	var t1, t2, t3 models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "First"}, &t1)
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "Second", Priority: models.PriorityHigh}, &t2)
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "Sub of first", ParentTaskID: &t1.ID}, &t3)
	rpc(t, app, "createTask", otherToken, models.CreateTaskRequest{UserID: otherUser.ID, Title: "Bob's task"}, nil)

	// Move t2 to in_progress so status filters have something to split on
	rpc(t, app, "updateTask", token, map[string]interface{}{"id": t2.ID, "status": "in_progress"}, nil)

	// No filters: all of alice's tasks in creation order, nobody else's
	var all []models.Task
	if status := rpc(t, app, "getTasks", token, models.GetTasksRequest{UserID: user.ID}, &all); status != 200 {
		t.Fatalf("getTasks: expected 200, got %d", status)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != t1.ID || all[1].ID != t2.ID || all[2].ID != t3.ID {
		t.Fatalf("Tasks not in creation order: %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}
	for _, task := range all {
		if task.UserID != user.ID {
			t.Fatalf("Leaked another user's task: %+v", task)
		}
	}

	// Status filter
	var pending []models.Task
	rpc(t, app, "getTasks", token, map[string]interface{}{"user_id": user.ID, "status": "pending"}, &pending)
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending tasks, got %d", len(pending))
	}

	// Priority filter
	var high []models.Task
	rpc(t, app, "getTasks", token, map[string]interface{}{"user_id": user.ID, "priority": "high"}, &high)
	if len(high) != 1 || high[0].ID != t2.ID {
		t.Fatalf("Expected only the high-priority task, got %+v", high)
	}

	// Subtasks of t1
	var children []models.Task
	rpc(t, app, "getTasks", token, map[string]interface{}{"user_id": user.ID, "parent_task_id": t1.ID}, &children)
	if len(children) != 1 || children[0].ID != t3.ID {
		t.Fatalf("Expected only the subtask, got %+v", children)
	}

	// Explicit null parent: root tasks only
	var roots []models.Task
	rpc(t, app, "getTasks", token, map[string]interface{}{"user_id": user.ID, "parent_task_id": nil}, &roots)
	if len(roots) != 2 {
		t.Fatalf("Expected 2 root tasks, got %d", len(roots))
	}
	for _, task := range roots {
		if task.ParentTaskID != nil {
			t.Fatalf("Root filter returned a subtask: %+v", task)
		}
	}
}

func TestUpdateTaskPartialPatch(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	var task models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{
		UserID:             user.ID,
		Title:              "Write report",
		Description:        strPtr("quarterly numbers"),
		Priority:           models.PriorityHigh,
		DueDate:            &due,
		EstimatedPomodoros: intPtr(4),
	}, &task)

	rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "in_progress"}, nil)

	// Patch only the status; everything else must survive
	var updated models.Task
	status := rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "completed"}, &updated)
	if status != 200 {
		t.Fatalf("updateTask: expected 200, got %d", status)
	}
	if updated.Status != models.StatusCompleted {
		t.Fatalf("Expected status completed, got %s", updated.Status)
	}
	if updated.Title != "Write report" {
		t.Fatalf("Title changed by status patch: %s", updated.Title)
	}
	if updated.Description == nil || *updated.Description != "quarterly numbers" {
		t.Fatalf("Description changed by status patch: %+v", updated.Description)
	}
	if updated.Priority != models.PriorityHigh {
		t.Fatalf("Priority changed by status patch: %s", updated.Priority)
	}
	if updated.DueDate == nil || !updated.DueDate.Equal(due) {
		t.Fatalf("Due date changed by status patch: %+v", updated.DueDate)
	}
	if updated.EstimatedPomodoros == nil || *updated.EstimatedPomodoros != 4 {
		t.Fatalf("Estimated pomodoros changed by status patch: %+v", updated.EstimatedPomodoros)
	}

	// Explicit null clears a nullable field
	var cleared models.Task
	rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "description": nil}, &cleared)
	if cleared.Description != nil {
		t.Fatalf("Expected description cleared, got %+v", cleared.Description)
	}
	if cleared.Title != "Write report" {
		t.Fatalf("Title changed by null patch: %s", cleared.Title)
	}
}

func TestUpdateTaskStatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	var task models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "T"}, &task)

	// pending -> completed skips in_progress and must be rejected
	status := rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "completed"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("Expected 409 for pending->completed, got %d", status)
	}

	// pending -> cancelled is terminal
	if s := rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "cancelled"}, nil); s != 200 {
		t.Fatalf("Expected 200 for pending->cancelled, got %d", s)
	}
	status = rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "in_progress"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("Expected 409 for cancelled->in_progress, got %d", status)
	}

	// Unknown id
	status = rpc(t, app, "updateTask", token, map[string]interface{}{"id": 99999, "status": "in_progress"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown task, got %d", status)
	}
}

func TestUpdateTaskRecurrence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	var task models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "T"}, &task)

	// Setting a pattern turns the recurring flag on
	var updated models.Task
	rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "recurrence_pattern": "daily"}, &updated)
	if !updated.IsRecurring || updated.RecurrencePattern == nil || *updated.RecurrencePattern != "daily" {
		t.Fatalf("Expected recurring daily task, got %+v", updated)
	}

	// Turning the flag off clears the pattern
	rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "is_recurring": false}, &updated)
	if updated.IsRecurring || updated.RecurrencePattern != nil {
		t.Fatalf("Expected recurrence cleared, got %+v", updated)
	}
}

// From in_progress, completed and cancelled are mutually exclusive: both
// end states are terminal, so of two concurrent status patches exactly one
// may commit and the loser must see a Conflict.
func TestUpdateTaskConcurrentStatusPatches(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	patch := func(taskID int, status string) int {
		raw, err := json.Marshal(map[string]interface{}{"id": taskID, "status": status})
		if err != nil {
			return 0
		}
		req := httptest.NewRequest("POST", "/api/rpc/updateTask", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req, -1)
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 25; i++ {
		var task models.Task
		rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "T"}, &task)
		rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "status": "in_progress"}, nil)

		results := make(chan int, 2)
		var wg sync.WaitGroup
		for _, status := range []string{models.StatusCompleted, models.StatusCancelled} {
			wg.Add(1)
			go func(status string) {
				defer wg.Done()
				results <- patch(task.ID, status)
			}(status)
		}
		wg.Wait()
		close(results)

		ok, conflict := 0, 0
		for code := range results {
			switch code {
			case http.StatusOK:
				ok++
			case http.StatusConflict:
				conflict++
			default:
				t.Fatalf("iteration %d: unexpected status %d", i, code)
			}
		}
		if ok != 1 || conflict != 1 {
			t.Fatalf("iteration %d: expected one winner and one conflict, got %d ok / %d conflict", i, ok, conflict)
		}

		var tasks []models.Task
		rpc(t, app, "getTasks", token, map[string]interface{}{"user_id": user.ID, "parent_task_id": nil}, &tasks)
		final := tasks[len(tasks)-1].Status
		if final != models.StatusCompleted && final != models.StatusCancelled {
			t.Fatalf("iteration %d: non-terminal status %s after a winning patch", i, final)
		}
	}
}

func TestTaskTitleLengthCountsRunes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	// 100 CJK runes are 300 bytes but well inside the 200-character limit
	title := strings.Repeat("任", 100)
	var task models.Task
	status := rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: title}, &task)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201 for a 100-rune title, got %d", status)
	}
	if task.Title != title {
		t.Fatalf("Title mangled: %q", task.Title)
	}

	long := strings.Repeat("任", 201)
	if s := rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: long}, nil); s != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a 201-rune title, got %d", s)
	}
	if s := rpc(t, app, "updateTask", token, map[string]interface{}{"id": task.ID, "title": long}, nil); s != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a 201-rune title patch, got %d", s)
	}
}

func TestDeleteTaskCascadesSubtree(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	token, user := registerUser(t, app, "alice@example.com", "alice")

	var parent, childA, childB models.Task
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "Parent"}, &parent)
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "A", ParentTaskID: &parent.ID}, &childA)
	rpc(t, app, "createTask", token, models.CreateTaskRequest{UserID: user.ID, Title: "B", ParentTaskID: &parent.ID}, &childB)

	// A session linked to the parent must survive the delete with task_id nulled
	var session models.PomodoroSession
	rpc(t, app, "startPomodoro", token, models.StartPomodoroRequest{UserID: user.ID, TaskID: &parent.ID}, &session)

	status := rpc(t, app, "deleteTask", token, models.DeleteTaskRequest{TaskID: parent.ID}, nil)
	if status != 200 {
		t.Fatalf("deleteTask: expected 200, got %d", status)
	}

	var remaining []models.Task
	rpc(t, app, "getTasks", token, models.GetTasksRequest{UserID: user.ID}, &remaining)
	if len(remaining) != 0 {
		t.Fatalf("Expected subtree cascade delete, still have %d tasks", len(remaining))
	}

	var history []models.PomodoroSession
	rpc(t, app, "getPomodoroHistory", token, models.GetPomodoroHistoryRequest{UserID: user.ID}, &history)
	if len(history) != 1 {
		t.Fatalf("Expected session to survive task delete, got %d sessions", len(history))
	}
	if history[0].TaskID != nil {
		t.Fatalf("Expected session task_id nulled, got %+v", history[0].TaskID)
	}

	// Deleting again is NotFound
	status = rpc(t, app, "deleteTask", token, models.DeleteTaskRequest{TaskID: parent.ID}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expected 404 for already-deleted task, got %d", status)
	}
}

func TestTaskOwnership(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	app := setupTestApp(db)

	tokenA, userA := registerUser(t, app, "a@example.com", "usera")
	tokenB, _ := registerUser(t, app, "b@example.com", "userb")

	var task models.Task
	rpc(t, app, "createTask", tokenA, models.CreateTaskRequest{UserID: userA.ID, Title: "Mine"}, &task)

	if s := rpc(t, app, "updateTask", tokenB, map[string]interface{}{"id": task.ID, "title": "Stolen"}, nil); s != http.StatusForbidden {
		t.Fatalf("Expected 403 updating another user's task, got %d", s)
	}
	if s := rpc(t, app, "deleteTask", tokenB, models.DeleteTaskRequest{TaskID: task.ID}, nil); s != http.StatusForbidden {
		t.Fatalf("Expected 403 deleting another user's task, got %d", s)
	}
}
