package alert

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

func emailTestAlert() types.Alert {
	return types.Alert{
		AlertID:     "a-1",
		Timestamp:   time.Now(),
		Severity:    types.SeverityError,
		Title:       "disk failing",
		Description: "desc",
		Source:      "test",
		Category:    "hardware",
	}
}

func TestEmailSendTimesOutOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accept the connection but never send the SMTP banner
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1)
		conn.Read(buf)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	ch := NewEmailChannel(config.EmailConfig{
		SMTPHost: "127.0.0.1",
		SMTPPort: addr.Port,
		ToEmails: []string{"ops@example.com"},
		Timeout:  100 * time.Millisecond,
	})

	start := time.Now()
	err = ch.Send(context.Background(), emailTestAlert())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEmailDefaultTimeout(t *testing.T) {
	ch := NewEmailChannel(config.EmailConfig{})
	assert.Equal(t, 10*time.Second, ch.cfg.Timeout)
}

func TestEmailNoRecipientsIsNoOp(t *testing.T) {
	ch := NewEmailChannel(config.EmailConfig{})
	require.NoError(t, ch.Send(context.Background(), emailTestAlert()))
}

func TestEmailBuildMessage(t *testing.T) {
	ch := NewEmailChannel(config.EmailConfig{
		FromEmail: "bot@example.com",
		ToEmails:  []string{"ops@example.com"},
	})
	msg := ch.buildMessage(emailTestAlert())
	assert.Contains(t, msg, "Subject: [ERROR] disk failing")
	assert.Contains(t, msg, "To: ops@example.com")
	assert.Contains(t, msg, "Content-Type: multipart/alternative")
}
