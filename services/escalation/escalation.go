// Package escalation emails the operators when an appointment has to be
// entered into VisionPlus by hand.
package escalation

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"visionsync-backend/lib/telemetry"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("visionsync.services.escalation")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"address"`
	Password     string `json:"password" env:"SMTP_PASSWORD"`
}

type Options struct {
	Smtp      SmtpConfig `json:"smtp"`
	Operators []string   `json:"operators"`
}

type Mailer struct {
	options Options
}

func NewMailer(options Options) Mailer {
	return Mailer{options: options}
}

// Enabled is false when there is nobody to notify.
func (m Mailer) Enabled() bool {
	return len(m.options.Operators) > 0 && m.options.Smtp.Server != ""
}

func (m Mailer) Escalate(ctx context.Context, appointment db.Appointment, reason string) error {
	ctx, span := tracer.Start(ctx, "Escalate")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment_id", appointment.Id),
		attribute.String("sync_status", string(appointment.SyncStatus)),
	)

	if !m.Enabled() {
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("VisionSync <%s>", m.options.Smtp.EmailAddress)
	mail.To = m.options.Operators
	mail.Subject = fmt.Sprintf("VisionPlus entry needed: %s", appointment.PatientName)
	mail.Text = []byte(Body(appointment, reason))

	addr := fmt.Sprintf("%s:%d", m.options.Smtp.Server, m.options.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.options.Smtp.EmailAddress, m.options.Smtp.Password, m.options.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Body is the plain text an operator needs to enter the appointment by hand.
func Body(appointment db.Appointment, reason string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "An appointment could not be synced to VisionPlus automatically (%s).\n", reason)
	sb.WriteString("Please enter it into VisionPlus by hand.\n\n")

	fmt.Fprintf(&sb, "Patient:      %s\n", appointment.PatientName)
	fmt.Fprintf(&sb, "Email:        %s\n", appointment.PatientEmail)
	fmt.Fprintf(&sb, "Phone:        %s\n", appointment.PatientPhone)
	fmt.Fprintf(&sb, "Branch:       %s\n", appointment.Branch)
	fmt.Fprintf(&sb, "Date:         %s\n", appointment.AppointmentDate.In(timezone.Location).Format("02/01/2006"))
	fmt.Fprintf(&sb, "Time:         %s\n", appointment.AppointmentTime)
	fmt.Fprintf(&sb, "Service:      %s\n", appointment.ServiceType)
	if appointment.Notes != "" {
		fmt.Fprintf(&sb, "Notes:        %s\n", appointment.Notes)
	}
	fmt.Fprintf(&sb, "\nReference: %s (sync status %s)\n", appointment.Id, appointment.SyncStatus)
	return sb.String()
}
