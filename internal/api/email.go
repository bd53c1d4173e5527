package api

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"pomo/internal/models"
)

var reminderEmailTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>Task due: {{.Title}}</h2>
	{{if .Description}}<p>{{.Description}}</p>{{end}}
	<p>Due {{.DueDate}}.</p>
	<p><a href="{{.AppURL}}">Open Pomo</a></p>
	<p style="color: #888; font-size: 12px;">Pomo &copy; {{.Year}}</p>
</body>
</html>`))

type emailReminderData struct {
	Title       string
	Description string
	DueDate     string
	AppURL      string
	Year        int
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// GetSMTPConfig reads SMTP configuration from environment variables
func GetSMTPConfig() (*SMTPConfig, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST not configured")
	}

	port := 587 // Default SMTP port
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
	}

	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@pomo.app"
	}

	useTLS := true
	if v := os.Getenv("SMTP_USE_TLS"); v != "" {
		useTLS = strings.ToLower(v) != "false"
	}

	return &SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASS"),
		From:     from,
		UseTLS:   useTLS,
	}, nil
}

// SendTaskReminderEmail emails a due-task reminder to the user. Missing
// SMTP configuration is not an error; the reminder just isn't mailed.
func SendTaskReminderEmail(task models.Task, userEmail string) error {
	config, err := GetSMTPConfig()
	if err != nil {
		log.Printf("SMTP not configured, skipping email: %v", err)
		return nil
	}

	dueDateStr := "now"
	if task.DueDate != nil {
		dueDateStr = formatEmailDate(*task.DueDate)
	}
	data := emailReminderData{
		Title:   task.Title,
		DueDate: dueDateStr,
		AppURL:  getAppURL(),
		Year:    time.Now().Year(),
	}
	if task.Description != nil {
		data.Description = *task.Description
	}

	var buf bytes.Buffer
	if err := reminderEmailTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	return sendSMTPEmail(config, userEmail, "Task due: "+task.Title, buf.String())
}

// formatEmailDate formats a time.Time for email display
func formatEmailDate(t time.Time) string {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	thatDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

	diffDays := int(thatDay.Sub(today).Hours() / 24)

	switch {
	case diffDays == 0:
		return fmt.Sprintf("today at %s", t.Format("3:04 PM"))
	case diffDays == -1:
		return fmt.Sprintf("yesterday at %s", t.Format("3:04 PM"))
	case diffDays < -1 && diffDays > -7:
		return fmt.Sprintf("%d days ago (%s)", -diffDays, t.Format("Jan 2"))
	default:
		if t.Year() == now.Year() {
			return t.Format("January 2")
		}
		return t.Format("January 2, 2006")
	}
}

// sendSMTPEmail sends an email via SMTP
func sendSMTPEmail(config *SMTPConfig, to, subject, htmlBody string) error {
	// Build email message with MIME multipart format
	boundary := "----=_Part_0_1234567890.1234567890"

	message := fmt.Sprintf("From: %s\r\n", config.From)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	message += "\r\n"

	// Plain text version
	message += fmt.Sprintf("--%s\r\n", boundary)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "Content-Transfer-Encoding: 7bit\r\n"
	message += "\r\n"
	message += "Please view this email in an HTML-capable email client.\r\n"
	message += "\r\n"

	// HTML version
	message += fmt.Sprintf("--%s\r\n", boundary)
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "Content-Transfer-Encoding: 7bit\r\n"
	message += "\r\n"
	message += htmlBody
	message += "\r\n"
	message += fmt.Sprintf("--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	if config.UseTLS {
		return sendMailTLS(addr, auth, config.From, []string{to}, []byte(message), config.Host)
	}

	return smtp.SendMail(addr, auth, config.From, []string{to}, []byte(message))
}

// sendMailTLS sends email with STARTTLS
func sendMailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte, host string) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	defer w.Close()

	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// getAppURL returns the application URL from environment or default
func getAppURL() string {
	url := os.Getenv("APP_URL")
	if url == "" {
		url = "http://localhost:3000"
	}
	return url
}
