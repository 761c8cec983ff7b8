package notice

import (
	"embed"
	"log/slog"

	"github.com/panelkit/simple-admin/pkg/notification"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NewNotificationManager creates a notification manager with the email
// notifier and the admin panel notice templates registered.
func NewNotificationManager(smtpConfig notification.SMTPConfig, baseUrl string) (*notification.NotificationManager, error) {
	notificationManager := notification.NewNotificationManager(baseUrl)

	emailNotifier, err := notification.NewEmailNotifier(smtpConfig)
	if err != nil {
		return nil, err
	}

	notificationManager.RegisterNotifier(notification.EmailSystem, emailNotifier)

	err = notificationManager.RegisterNotification(notification.PasswordResetNotice, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Password Reset Request",
		Html:    loadTemplate("templates/email/password_reset.html"),
	})
	if err != nil {
		slog.Error("failed to register password reset notification", "error", err)
		return nil, err
	}

	err = notificationManager.RegisterNotification(notification.WelcomeNotice, notification.EmailSystem, notification.NoticeTemplate{
		Subject: "Welcome!",
		Html:    loadTemplate("templates/email/welcome.html"),
	})
	if err != nil {
		slog.Error("failed to register welcome notification", "error", err)
		return nil, err
	}

	return notificationManager, nil
}
