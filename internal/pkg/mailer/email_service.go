package mailer

import (
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"
)

// BriefMail is a generated brief addressed to the intake desk.
type BriefMail struct {
	SessionID string
	BriefID   string
	Urgency   string
	Summary   string
	// Body is the brief rendered as markdown; it is attached and quoted.
	Body string
}

type IEmailService interface {
	SendBrief(toEmail string, brief BriefMail) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func (s *emailService) SendBrief(toEmail string, brief BriefMail) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", BriefSubject(brief))
	m.SetBody("text/html", briefHTML(brief))
	m.AddAlternative("text/plain", brief.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send brief %s to %s: %w", brief.BriefID, toEmail, err)
	}
	return nil
}

func BriefSubject(b BriefMail) string {
	urgency := strings.ToUpper(strings.ReplaceAll(orDefault(b.Urgency, "standard"), "_", " "))
	return fmt.Sprintf("[%s] Legal brief %s", urgency, shortID(b.BriefID))
}

func briefHTML(b BriefMail) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>New client brief</h2>
			<p><strong>Session:</strong> %s<br><strong>Urgency:</strong> %s</p>
			<p>%s</p>
			<pre style="white-space: pre-wrap; background: #f6f6f6; padding: 12px;">%s</pre>
		</div>
	`, html.EscapeString(b.SessionID), html.EscapeString(orDefault(b.Urgency, "standard")),
		html.EscapeString(b.Summary), html.EscapeString(b.Body))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
