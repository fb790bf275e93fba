package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finapi/internal/config"
	"github.com/Dan9191/finapi/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// NotifyStatement emails the owner of st about the movement it records
func (s *Sender) NotifyStatement(ctx context.Context, user models.User, st models.Statement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := s.buildMessage(user, st)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := s.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", st.Type, err)
	}

	s.logger.Infof("Email sent to %s: %s", user.Email, e.Subject)
	return nil
}

func (s *Sender) buildMessage(user models.User, st models.Statement) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{user.Email}
	e.Subject = fmt.Sprintf("%s Notification", subjectFor(st))

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\n", user.Name)
	switch {
	case st.Type == models.Deposit:
		fmt.Fprintf(&body, "Your account has been credited with %s.\n", st.Amount.StringFixed(2))
	case st.Type == models.Withdraw:
		fmt.Fprintf(&body, "An amount of %s has been withdrawn from your account.\n", st.Amount.StringFixed(2))
	case st.Direction == models.DirectionIn:
		fmt.Fprintf(&body, "You have received a transfer of %s from user %s.\n", st.Amount.StringFixed(2), counterparty(st))
	default:
		fmt.Fprintf(&body, "You have sent a transfer of %s to user %s.\n", st.Amount.StringFixed(2), counterparty(st))
	}
	fmt.Fprintf(&body, "Description: %s\n", st.Description)
	fmt.Fprintf(&body, "Statement: %s\n", st.ID)
	fmt.Fprintf(&body, "Transaction time: %s\n", st.CreatedAt.Format("2006-01-02 15:04:05"))
	body.WriteString("\nBest regards,\nFinAPI")

	e.Text = []byte(body.String())
	return e
}

func subjectFor(st models.Statement) string {
	switch {
	case st.Type == models.Deposit:
		return "Deposit"
	case st.Type == models.Withdraw:
		return "Withdrawal"
	case st.Direction == models.DirectionIn:
		return "Incoming Transfer"
	default:
		return "Outgoing Transfer"
	}
}

func counterparty(st models.Statement) string {
	if st.CounterpartyID == nil {
		return "unknown"
	}
	return st.CounterpartyID.String()
}
