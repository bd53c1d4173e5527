package models

import "time"

// Task priority values
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task status values
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Pomodoro session types
const (
	PomodoroWork       = "work"
	PomodoroShortBreak = "short_break"
	PomodoroLongBreak  = "long_break"
)

var ValidPriorities = map[string]bool{
	PriorityLow: true, PriorityMedium: true, PriorityHigh: true, PriorityUrgent: true,
}

var ValidStatuses = map[string]bool{
	StatusPending: true, StatusInProgress: true, StatusCompleted: true, StatusCancelled: true,
}

var ValidRecurrencePatterns = map[string]bool{
	"daily": true, "weekly": true, "monthly": true, "yearly": true,
}

var ValidPomodoroTypes = map[string]bool{
	PomodoroWork: true, PomodoroShortBreak: true, PomodoroLongBreak: true,
}

var ValidThemes = map[string]bool{
	"light": true, "dark": true, "system": true,
}

// CanTransition reports whether a task status change is legal:
// pending -> in_progress -> completed, cancellation from pending or
// in_progress, and same-state writes as no-ops.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		// completed and cancelled are terminal
		return false
	}
}

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsPremium    bool      `json:"is_premium"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Task struct {
	ID                 int        `json:"id"`
	UserID             int        `json:"user_id"`
	Title              string     `json:"title"`
	Description        *string    `json:"description"`
	Priority           string     `json:"priority"`
	Status             string     `json:"status"`
	DueDate            *time.Time `json:"due_date"`
	EstimatedPomodoros *int       `json:"estimated_pomodoros"`
	CompletedPomodoros int        `json:"completed_pomodoros"`
	IsRecurring        bool       `json:"is_recurring"`
	RecurrencePattern  *string    `json:"recurrence_pattern"`
	ParentTaskID       *int       `json:"parent_task_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type PomodoroSession struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user_id"`
	TaskID          *int       `json:"task_id"`
	Type            string     `json:"type"`
	DurationMinutes int        `json:"duration_minutes"`
	Completed       bool       `json:"completed"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type UserPreferences struct {
	ID                      int       `json:"id"`
	UserID                  int       `json:"user_id"`
	WorkDuration            int       `json:"work_duration"`
	ShortBreakDuration      int       `json:"short_break_duration"`
	LongBreakDuration       int       `json:"long_break_duration"`
	PomodorosUntilLongBreak int       `json:"pomodoros_until_long_break"`
	Theme                   string    `json:"theme"`
	ColorScheme             string    `json:"color_scheme"`
	MinimalistMode          bool      `json:"minimalist_mode"`
	NotificationsEnabled    bool      `json:"notifications_enabled"`
	SoundEnabled            bool      `json:"sound_enabled"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type PushSubscription struct {
	ID       int    `json:"id"`
	UserID   int    `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateTaskRequest struct {
	UserID             int        `json:"user_id"`
	Title              string     `json:"title"`
	Description        *string    `json:"description,omitempty"`
	Priority           string     `json:"priority,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	EstimatedPomodoros *int       `json:"estimated_pomodoros,omitempty"`
	IsRecurring        bool       `json:"is_recurring,omitempty"`
	RecurrencePattern  *string    `json:"recurrence_pattern,omitempty"`
	ParentTaskID       *int       `json:"parent_task_id,omitempty"`
}

// UpdateTaskRequest is a partial patch: plain pointers mark optional
// non-nullable fields, Optional wrappers mark fields where "absent" and
// "set to null" mean different things.
type UpdateTaskRequest struct {
	ID                 int                 `json:"id"`
	Title              *string             `json:"title"`
	Description        Optional[string]    `json:"description,omitzero"`
	Priority           *string             `json:"priority"`
	Status             *string             `json:"status"`
	DueDate            Optional[time.Time] `json:"due_date,omitzero"`
	EstimatedPomodoros Optional[int]       `json:"estimated_pomodoros,omitzero"`
	IsRecurring        *bool               `json:"is_recurring"`
	RecurrencePattern  Optional[string]    `json:"recurrence_pattern,omitzero"`
}

// GetTasksRequest filters a user's tasks. An explicitly null
// parent_task_id selects root tasks only; an absent one selects all.
type GetTasksRequest struct {
	UserID       int           `json:"user_id"`
	Status       *string       `json:"status"`
	Priority     *string       `json:"priority"`
	ParentTaskID Optional[int] `json:"parent_task_id,omitzero"`
}

type DeleteTaskRequest struct {
	TaskID int `json:"taskId"`
}

type StartPomodoroRequest struct {
	UserID          int    `json:"user_id"`
	TaskID          *int   `json:"task_id,omitempty"`
	Type            string `json:"type,omitempty"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
}

type CompletePomodoroRequest struct {
	SessionID int `json:"session_id"`
}

type GetPomodoroHistoryRequest struct {
	UserID   int        `json:"user_id"`
	TaskID   *int       `json:"task_id,omitempty"`
	FromDate *time.Time `json:"from_date,omitempty"`
	ToDate   *time.Time `json:"to_date,omitempty"`
}

type GetUserPreferencesRequest struct {
	UserID int `json:"userId"`
}

type UpdateUserPreferencesRequest struct {
	UserID                  int     `json:"user_id"`
	WorkDuration            *int    `json:"work_duration"`
	ShortBreakDuration      *int    `json:"short_break_duration"`
	LongBreakDuration       *int    `json:"long_break_duration"`
	PomodorosUntilLongBreak *int    `json:"pomodoros_until_long_break"`
	Theme                   *string `json:"theme"`
	ColorScheme             *string `json:"color_scheme"`
	MinimalistMode          *bool   `json:"minimalist_mode"`
	NotificationsEnabled    *bool   `json:"notifications_enabled"`
	SoundEnabled            *bool   `json:"sound_enabled"`
}
