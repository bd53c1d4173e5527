package api

import (
	"database/sql"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"pomo/internal/auth"
	"pomo/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/mattn/go-sqlite3"
)

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like "Alice <alice@x.com>"
	return addr.Address == email && strings.Contains(email, "@")
}

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsPremium, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const userColumns = "id, email, username, password_hash, is_premium, created_at, updated_at"

// CreateUserHandler registers a new account. The user row and its default
// preferences row are created in one transaction: a user without a
// preferences row must never be observable.
func CreateUserHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.CreateUserRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if !validEmail(req.Email) {
			return fiber.NewError(fiber.StatusBadRequest, "email: must be a valid email address")
		}
		if n := utf8.RuneCountInString(req.Username); n < 3 || n > 50 {
			return fiber.NewError(fiber.StatusBadRequest, "username: must be 3-50 characters")
		}
		if len(req.Password) < 6 {
			return fiber.NewError(fiber.StatusBadRequest, "password: must be at least 6 characters")
		}

		// Hash password
		hashedPassword, err := auth.HashPassword(req.Password)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to hash password")
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		// Uniqueness pre-checks so the caller learns which field collided
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", req.Email).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return fiber.NewError(fiber.StatusConflict, "Email already registered")
		}
		if err := tx.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", req.Username).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return fiber.NewError(fiber.StatusConflict, "Username already taken")
		}

		result, err := tx.Exec(
			"INSERT INTO users (email, username, password_hash) VALUES (?, ?, ?)",
			req.Email, req.Username, hashedPassword,
		)
		if err != nil {
			// UNIQUE constraint race lost to a concurrent registration;
			// anything else is a real store failure.
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return fiber.NewError(fiber.StatusConflict, "Email or username already exists")
			}
			return err
		}
		userID64, _ := result.LastInsertId()
		userID := int(userID64)

		// Default preferences, same transaction
		if _, err := tx.Exec("INSERT INTO user_preferences (user_id) VALUES (?)", userID); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID))
		if err != nil {
			return err
		}

		// Generate access and refresh tokens
		accessToken, err := auth.GenerateToken(userID, req.Username)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate token")
		}

		days := auth.RefreshDays(req.Remember)
		refreshToken, err := auth.GenerateRefreshToken(userID, req.Username, days)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate refresh token")
		}

		// Persist refresh token in DB and set cookie
		expiresAt := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		if err := StoreRefreshToken(db, userID, refreshToken, expiresAt, days); err != nil {
			log.Printf("Failed to store refresh token (createUser): %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to store refresh token")
		}
		setRefreshCookie(c, refreshToken, expiresAt)

		return c.Status(fiber.StatusCreated).JSON(models.AuthResponse{
			Token: accessToken,
			User:  user,
		})
	}
}

func LoginUserHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if !validEmail(req.Email) {
			return fiber.NewError(fiber.StatusBadRequest, "email: must be a valid email address")
		}
		if req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "password: required")
		}

		user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", req.Email))
		if err == sql.ErrNoRows {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Database error")
		}

		// Check password
		if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}

		accessToken, err := auth.GenerateToken(user.ID, user.Username)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate token")
		}

		days := auth.RefreshDays(req.Remember)
		refreshToken, err := auth.GenerateRefreshToken(user.ID, user.Username, days)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate refresh token")
		}
		expiresAt := time.Now().Add(time.Duration(days) * 24 * time.Hour)
		if err := StoreRefreshToken(db, user.ID, refreshToken, expiresAt, days); err != nil {
			log.Printf("Failed to store refresh token (loginUser): %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to store refresh token")
		}
		setRefreshCookie(c, refreshToken, expiresAt)

		return c.JSON(models.AuthResponse{
			Token: accessToken,
			User:  user,
		})
	}
}

func setRefreshCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    token,
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   auth.CookieSecure(),
		SameSite: "Lax",
		Path:     "/api/auth",
	})
}

// RefreshTokenHandler generates a new access token from a valid refresh token cookie
func RefreshTokenHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		refreshToken := c.Cookies("refresh_token")
		if refreshToken == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Refresh token not found")
		}

		// Validate refresh token signature
		claims, err := auth.ValidateRefreshToken(refreshToken)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired refresh token")
		}

		// Check token presence in DB and get its TTL
		dbUserID, ttlDays, err := ValidateRefreshTokenInDB(db, refreshToken)
		if err != nil {
			log.Printf("Refresh token DB validation failed: %v", err)
			return fiber.NewError(fiber.StatusUnauthorized, "Refresh token not valid")
		}
		if dbUserID != claims.UserID {
			return fiber.NewError(fiber.StatusUnauthorized, "Token user mismatch")
		}

		accessToken, err := auth.GenerateToken(claims.UserID, claims.Username)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate access token")
		}

		// Rotate refresh token: create new token with same TTL, store and revoke old
		newRefreshToken, err := auth.GenerateRefreshToken(claims.UserID, claims.Username, ttlDays)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to generate new refresh token")
		}
		expiresAt := time.Now().Add(time.Duration(ttlDays) * 24 * time.Hour)
		if err := StoreRefreshToken(db, claims.UserID, newRefreshToken, expiresAt, ttlDays); err != nil {
			log.Printf("Failed to store new refresh token (refresh): %v", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to store new refresh token")
		}
		if err := RevokeRefreshToken(db, refreshToken); err != nil {
			log.Printf("Failed to revoke old refresh token: %v", err)
		}

		setRefreshCookie(c, newRefreshToken, expiresAt)

		return c.JSON(fiber.Map{
			"token": accessToken,
		})
	}
}

// LogoutHandler clears the refresh token cookie
func LogoutHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Revoke refresh token in DB if present
		old := c.Cookies("refresh_token")
		if old != "" {
			_ = RevokeRefreshToken(db, old) // best-effort; ignore errors
		}

		c.Cookie(&fiber.Cookie{
			Name:     "refresh_token",
			Value:    "",
			Expires:  time.Now().Add(-1 * time.Hour),
			HTTPOnly: true,
			Secure:   auth.CookieSecure(),
			SameSite: "Lax",
			Path:     "/api/auth",
		})

		return c.JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}
}

// GetUserProfileHandler returns the current user's profile information
func GetUserProfileHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		user, err := scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", userID))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to get user profile")
		}

		return c.JSON(user)
	}
}
