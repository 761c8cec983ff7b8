package notification

// NotificationSystem represents a delivery channel (e.g. email).
type NotificationSystem string

// NoticeType represents a kind of notification (e.g. "password_reset").
type NoticeType string

const (
	EmailSystem NotificationSystem = "email"

	PasswordResetNotice NoticeType = "password_reset"
	WelcomeNotice       NoticeType = "welcome"
)

// NoticeTemplate holds the renderable content for a notice.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type NotificationData struct {
	To      string            // Recipient identifier (e.g., email address)
	Subject string            // Optional: overrides the template subject
	Body    string            // The content or message to send
	Data    map[string]string // Template data (e.g., reset link, username)
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
