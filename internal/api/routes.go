package api

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes wires the RPC procedures and the supporting auth/push
// endpoints. Every procedure is a POST under /api/rpc taking a single JSON
// input object, mirroring the typed procedure surface the clients use.
func SetupRoutes(app *fiber.App, db *sql.DB) {
	api := app.Group("/api")

	// Check if registration is disabled
	disableRegistration := strings.ToLower(os.Getenv("DISABLE_REGISTRATION")) == "true"

	// Configuration endpoint (public)
	api.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"disableRegistration": disableRegistration,
		})
	})

	// Public procedures
	rpc := api.Group("/rpc")
	if !disableRegistration {
		rpc.Post("/createUser", CreateUserHandler(db))
	}
	rpc.Post("/loginUser", LoginUserHandler(db))
	rpc.Post("/healthcheck", HealthcheckHandler())

	// Cookie-based token lifecycle
	authGroup := api.Group("/auth")
	authGroup.Post("/refresh", RefreshTokenHandler(db))
	authGroup.Post("/logout", LogoutHandler(db))

	// VAPID public key endpoint (public - must be before protected routes for proper routing)
	api.Get("/push/vapid-public-key", VapidPublicKeyHandler())

	// Protected procedures
	protected := rpc.Group("/", AuthMiddleware())
	protected.Post("/createTask", CreateTaskHandler(db))
	protected.Post("/getTasks", GetTasksHandler(db))
	protected.Post("/updateTask", UpdateTaskHandler(db))
	protected.Post("/deleteTask", DeleteTaskHandler(db))
	protected.Post("/startPomodoro", StartPomodoroHandler(db))
	protected.Post("/completePomodoro", CompletePomodoroHandler(db))
	protected.Post("/getPomodoroHistory", GetPomodoroHistoryHandler(db))
	protected.Post("/getUserPreferences", GetUserPreferencesHandler(db))
	protected.Post("/updateUserPreferences", UpdateUserPreferencesHandler(db))

	// Push subscription routes
	push := api.Group("/push", AuthMiddleware())
	push.Post("/subscribe", SubscribePushHandler(db))
	push.Delete("/unsubscribe", UnsubscribePushHandler(db))

	// User profile route
	api.Get("/user/profile", AuthMiddleware(), GetUserProfileHandler(db))

	// Health check
	app.Get("/health", HealthcheckHandler())
}

func HealthcheckHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
