package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ContactMessage is a bound and validated contact form submission.
type ContactMessage struct {
	Name    string `form:"fullName" json:"name" binding:"required,max=100"`
	Email   string `form:"email" json:"email" binding:"required,email,max=254"`
	Message string `form:"message" json:"message" binding:"required,max=5000"`
}

// Mailer delivers contact messages to the site owner.
type Mailer interface {
	Send(ctx context.Context, msg ContactMessage) error
}

var ErrMailerNotConfigured = errors.New("SMTP credentials not configured")

type smtpMailer struct {
	host     string
	port     string
	user     string
	pass     string
	to       string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTPMailer(cfg *Config, fallbackTo string) *smtpMailer {
	to := cfg.ToEmail
	if to == "" {
		to = fallbackTo
	}
	return &smtpMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (m *smtpMailer) Send(ctx context.Context, msg ContactMessage) error {
	if m.user == "" || m.pass == "" {
		return ErrMailerNotConfigured
	}

	body := composeContactEmail(m.user, m.to, msg)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)

	// net/smtp has no context support, so the send runs on its own and a
	// cancelled context just stops waiting for it.
	done := make(chan error, 1)
	go func() {
		done <- m.sendMail(m.host+":"+m.port, auth, m.user, []string{m.to}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sending email: %w", err)
		}
		log.Printf("Contact email sent for %s", msg.Name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending email: %w", ctx.Err())
	}
}

func composeContactEmail(from, to string, msg ContactMessage) []byte {
	subject := fmt.Sprintf("Portfolio Contact: %s", sanitizeHeader(msg.Name))
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, msg.Name, msg.Email, msg.Message)

	return []byte("To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"From: " + from + "\r\n" +
		"Reply-To: " + sanitizeHeader(msg.Email) + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

// sanitizeHeader keeps user input from injecting extra mail headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Notification is the toast fragment shown after a form action.
type Notification struct {
	Kind string
	Text string
}

const (
	NotifySuccess = "success"
	NotifyError   = "error"
	NotifyWarning = "warning"
)

const (
	contactInvalidText = "Please fill in every field with a valid email address."
	contactSuccessText = "Thank you for your message! I'll get back to you soon."
)

func setupContactRoutes(r *gin.Engine, app *App) {
	r.GET("/contact-form", func(c *gin.Context) {
		c.HTML(http.StatusOK, "contact.html", gin.H{
			"title":   "Contact Me",
			"profile": app.site.Profile,
		})
	})

	r.POST("/contact", func(c *gin.Context) {
		var msg ContactMessage
		if err := c.ShouldBind(&msg); err != nil {
			c.HTML(http.StatusOK, "notification.html", Notification{
				Kind: NotifyWarning,
				Text: contactInvalidText,
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), app.cfg.ContactTimeout)
		defer cancel()
		ctx, span := tracer.Start(ctx, "contact.send")
		err := app.mailer.Send(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Bool("contact.success", err == nil))
		span.End()

		if recErr := app.store.RecordContact(err, time.Now()); recErr != nil {
			log.Printf("Error recording contact submission: %v", recErr)
		}

		if err != nil {
			log.Printf("Error sending contact email: %v", err)
			c.HTML(http.StatusOK, "notification.html", Notification{
				Kind: NotifyError,
				Text: "Sorry, your message could not be sent: " + err.Error(),
			})
			return
		}

		c.HTML(http.StatusOK, "notification.html", Notification{
			Kind: NotifySuccess,
			Text: contactSuccessText,
		})
	})
}
