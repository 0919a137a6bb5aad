package escalation

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"
	"visionsync-backend/services/appointments/db"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mailcatcher starts a fake smtp server and returns its smtp address and the
// base url of its message api.
func mailcatcher(t *testing.T) (string, int, string) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp", "1080/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := container.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webPort, err := container.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	return host, smtpPort.Int(), fmt.Sprintf("http://%s:%s", host, webPort.Port())
}

type caughtMessage struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}

var appointment = db.Appointment{
	Id:              "b5e1",
	PatientName:     "Tariro Moyo",
	PatientEmail:    "tariro@example.com",
	PatientPhone:    "+263 77 123 4567",
	Branch:          "Kensington",
	AppointmentDate: time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC),
	AppointmentTime: "09:00",
	ServiceType:     "Eye Test",
	SyncStatus:      db.SyncManualRequired,
}

func TestBody(t *testing.T) {
	body := Body(appointment, "every automatic sync strategy failed")
	require.Contains(t, body, "(every automatic sync strategy failed)")
	require.Contains(t, body, "Patient:      Tariro Moyo\n")
	// rendered in the business timezone
	require.Contains(t, body, "Date:         05/03/2024\n")
	require.Contains(t, body, "Reference: b5e1 (sync status MANUAL_REQUIRED)")
	require.NotContains(t, body, "Notes:")
}

func TestEscalate(t *testing.T) {
	host, port, api := mailcatcher(t)
	mailer := NewMailer(Options{
		Smtp: SmtpConfig{
			Server:       host,
			Port:         port,
			EmailAddress: "visionsync@example.com",
			Password:     "default",
		},
		Operators: []string{"frontdesk@example.com"},
	})
	require.True(t, mailer.Enabled())

	err := mailer.Escalate(context.Background(), appointment, "manual sync requested")
	require.NoError(t, err)

	client := resty.New().SetBaseURL(api)

	var message caughtMessage
	res, err := client.R().SetResult(&message).Get("/messages/1.json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Equal(t, "VisionPlus entry needed: Tariro Moyo", message.Subject)
	require.Contains(t, message.Sender, "visionsync@example.com")
	require.Len(t, message.Recipients, 1)
	require.Contains(t, message.Recipients[0], "frontdesk@example.com")

	res, err = client.R().Get("/messages/1.plain")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Contains(t, res.String(), "(manual sync requested)")
	require.Contains(t, res.String(), "Patient:      Tariro Moyo")
}

func TestEscalateDisabled(t *testing.T) {
	mailer := NewMailer(Options{})
	require.False(t, mailer.Enabled())
	require.NoError(t, mailer.Escalate(context.Background(), appointment, "manual sync requested"))
}

func TestEscalateUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	mailer := NewMailer(Options{
		Smtp:      SmtpConfig{Server: "127.0.0.1", Port: port, EmailAddress: "visionsync@example.com"},
		Operators: []string{"frontdesk@example.com"},
	})
	require.Error(t, mailer.Escalate(context.Background(), appointment, "reason"))
}
