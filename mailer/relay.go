package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/migadu/sera/logger"
)

// relay pushes one raw message through the configured SMTP relay. One
// envelope, one recipient; delivery retry is the relay's job, not ours.
func (m *SMTPMailer) relay(ctx context.Context, from, to string, raw []byte) error {
	c, err := m.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	// The smtp client has no context plumbing; tie the connection to the
	// deadline instead so a hung relay cannot stall a sweep forever.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("relay auth failed: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The relay already accepted the message at this point.
		logger.Warn("relay QUIT failed", "error", err)
	}
	return nil
}

func (m *SMTPMailer) dial() (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Renegotiation:      tls.RenegotiateNever,
		InsecureSkipVerify: !m.cfg.GetTLSVerify(),
	}

	switch {
	case m.cfg.UseStartTLS:
		c, err := smtp.DialStartTLS(m.cfg.Host, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to relay with STARTTLS: %w", err)
		}
		return c, nil
	case m.cfg.UseTLS:
		c, err := smtp.DialTLS(m.cfg.Host, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to relay with TLS: %w", err)
		}
		return c, nil
	default:
		c, err := smtp.Dial(m.cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to relay: %w", err)
		}
		return c, nil
	}
}
