package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/readbook-app/readbook-api/internal/auth"
	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/logging"
)

// Service sends OTP mails over SMTP.
type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
}

func NewService(cfg *config.EmailConfig) *Service {
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUser
	}
	return &Service{
		smtpHost:     cfg.SMTPHost,
		smtpPort:     cfg.SMTPPort,
		smtpUser:     cfg.SMTPUser,
		smtpPassword: cfg.SMTPPassword,
		fromEmail:    from,
	}
}

// SendOTP delivers a one-time code for the given flow.
// This method is designed to be called in a goroutine.
func (s *Service) SendOTP(ctx context.Context, toEmail, code string, purpose auth.OTPPurpose) error {
	logger := logging.GetLoggerFromContext(ctx)

	subject := "Your verification code"
	heading := "Verify your account"
	intro := "Thank you for signing up! Enter the code below to activate your account."
	if purpose == auth.PurposeReset {
		subject = "Your password reset code"
		heading = "Reset your password"
		intro = "You requested a password reset. Enter the code below to continue."
	}

	body, err := s.renderOTPTemplate(heading, intro, code)
	if err != nil {
		logger.Error("failed to render otp email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.sendEmail(toEmail, subject, body); err != nil {
		logger.Error("failed to send otp email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("otp email sent", "email", toEmail, "purpose", string(purpose))
	return nil
}

func (s *Service) sendEmail(to, subject, body string) error {
	smtpAuth := smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)

	// Build message
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return smtp.SendMail(addr, smtpAuth, s.fromEmail, []string{to}, msg)
}

func (s *Service) renderOTPTemplate(heading, intro, code string) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .code {
            display: inline-block;
            background-color: #fff;
            border: 1px solid #ddd;
            padding: 12px 30px;
            border-radius: 5px;
            margin: 20px 0;
            font-size: 28px;
            letter-spacing: 8px;
            font-weight: bold;
            color: #4F46E5;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Heading}}</h1>
    </div>
    <div class="content">
        <p>{{.Intro}}</p>

        <div class="code">{{.Code}}</div>

        <p style="margin-top: 30px;">If you didn't request this code, you can safely ignore this email.</p>
    </div>
    <div class="footer">
        <p>This code will expire in 5 minutes.</p>
        <p>&copy; 2026 ReadBook. All rights reserved.</p>
    </div>
</body>
</html>
`

	t, err := template.New("otp").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		Heading string
		Intro   string
		Code    string
	}{
		Heading: heading,
		Intro:   intro,
		Code:    code,
	}

	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

var _ auth.OTPMailer = (*Service)(nil)
