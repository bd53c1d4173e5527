package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gofiber/fiber/v2"
)

// PushPayload represents the notification payload sent to clients
type PushPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	Tag   string                 `json:"tag,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// GetVapidOptions returns configured VAPID options from environment
func GetVapidOptions() *webpush.Options {
	return &webpush.Options{
		Subscriber:      os.Getenv("VAPID_SUBJECT"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		TTL:             30,
	}
}

// IsWebPushConfigured checks if VAPID keys are configured
func IsWebPushConfigured() bool {
	return os.Getenv("VAPID_PUBLIC_KEY") != "" &&
		os.Getenv("VAPID_PRIVATE_KEY") != "" &&
		os.Getenv("VAPID_SUBJECT") != ""
}

// SendPushToUser sends a push notification to all subscriptions for a user.
// Users who disabled notifications in their preferences are skipped.
func SendPushToUser(db *sql.DB, userID int, payload PushPayload) error {
	if !IsWebPushConfigured() {
		log.Println("Web push not configured - skipping notification")
		return nil
	}

	var enabled bool
	err := db.QueryRow("SELECT notifications_enabled FROM user_preferences WHERE user_id = ?", userID).Scan(&enabled)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check notification preference: %w", err)
	}
	if err == nil && !enabled {
		return nil
	}

	rows, err := db.Query(
		"SELECT endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	defer rows.Close()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	options := GetVapidOptions()
	successCount := 0
	failCount := 0
	subscriptionCount := 0

	for rows.Next() {
		subscriptionCount++
		var endpoint, p256dh, auth string
		if err := rows.Scan(&endpoint, &p256dh, &auth); err != nil {
			log.Printf("Error scanning subscription: %v", err)
			failCount++
			continue
		}

		subscription := &webpush.Subscription{
			Endpoint: endpoint,
			Keys: webpush.Keys{
				P256dh: p256dh,
				Auth:   auth,
			},
		}

		resp, err := webpush.SendNotification(payloadJSON, subscription, options)
		if err != nil {
			log.Printf("Failed to send push to %s: %v", endpoint, err)
			failCount++

			// If subscription is expired/invalid (410 Gone or 404), remove it
			if resp != nil && (resp.StatusCode == 410 || resp.StatusCode == 404) {
				_, _ = db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
				log.Printf("Removed expired subscription: %s", endpoint)
			}
			continue
		}

		if resp != nil {
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				log.Printf("Push service error response (%d): %s", resp.StatusCode, string(body))
			}
			resp.Body.Close()

			// If 403 Forbidden, the VAPID keys don't match - delete the subscription
			// so the client will re-subscribe with current keys
			if resp.StatusCode == 403 {
				_, _ = db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
				log.Printf("Deleted mismatched subscription (403 Forbidden): %s", endpoint)
				failCount++
				continue
			}
		}

		successCount++
	}

	log.Printf("Push notification summary for user %d: subscriptions=%d, success=%d, failed=%d", userID, subscriptionCount, successCount, failCount)

	if subscriptionCount == 0 {
		return fmt.Errorf("no push subscriptions found for user %d", userID)
	}
	if failCount > 0 && successCount == 0 {
		return fmt.Errorf("failed to send any push notifications (attempted %d)", failCount)
	}

	return nil
}

// VapidPublicKeyHandler returns the VAPID public key for client subscription
func VapidPublicKeyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		publicKey := os.Getenv("VAPID_PUBLIC_KEY")
		if publicKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push notifications not configured")
		}
		return c.JSON(fiber.Map{
			"publicKey": publicKey,
		})
	}
}
