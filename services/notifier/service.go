package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"allepoints-backend/services/directory"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/notifier")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Options struct {
	Smtp SmtpConfig
	// staff inboxes that get the digest
	Recipients []string
	// balances expiring within this window make it into the digest
	ExpiryWindow time.Duration
	// hour of the day (practice timezone) the daemon sends at
	DigestHour int
}

// Service mails the practice a daily digest of members whose points
// are about to expire, so staff can nudge them before the balance is
// gone.
type Service struct {
	directory directory.Service
	config    Options
}

func NewService(dir directory.Service, options Options) Service {
	if options.ExpiryWindow == 0 {
		options.ExpiryWindow = time.Hour * 24 * 30
	}
	if options.DigestHour == 0 {
		options.DigestHour = 8
	}
	return Service{
		directory: dir,
		config:    options,
	}
}

type Digest struct {
	Expiring []directory.Member
	Summary  directory.Summary
	Window   time.Duration
}

func (s Service) BuildDigest(ctx context.Context) (Digest, error) {
	ctx, span := tracer.Start(ctx, "BuildDigest")
	defer span.End()

	expiring, err := s.directory.ExpiringMembers(ctx, s.config.ExpiryWindow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list expiring members")
		return Digest{}, err
	}
	summary, err := s.directory.Summary(ctx, s.config.ExpiryWindow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to summarize roster")
		return Digest{}, err
	}

	return Digest{
		Expiring: expiring,
		Summary:  summary,
		Window:   s.config.ExpiryWindow,
	}, nil
}

func renderDigest(digest Digest) string {
	var b strings.Builder

	days := int(digest.Window / (time.Hour * 24))
	fmt.Fprintf(&b, "The following members have points expiring within the next %d days:\n\n", days)

	for _, m := range digest.Expiring {
		expires := ""
		if m.PointsExpireAt != nil {
			expires = m.PointsExpireAt.Format("Jan 2, 2006")
		}
		fmt.Fprintf(&b, "  - %s (%s): %d points expire on %s\n", m.Name, m.Phone, m.Points, expires)
	}

	fmt.Fprintf(
		&b,
		"\nRoster: %d members, %d points outstanding.\n",
		digest.Summary.TotalMembers,
		digest.Summary.TotalPoints,
	)
	return b.String()
}

// SendDigest mails the expiring-points digest to the configured
// recipients. Nothing is sent when no balances are about to expire.
func (s Service) SendDigest(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "SendDigest")
	defer span.End()

	digest, err := s.BuildDigest(ctx)
	if err != nil {
		return err
	}
	if len(digest.Expiring) == 0 {
		span.SetAttributes(attribute.Bool("skipped", true))
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("AllePoints <%s>", s.config.Smtp.EmailAddress)
	mail.To = s.config.Recipients
	mail.Subject = fmt.Sprintf("%d members have points expiring soon", len(digest.Expiring))
	mail.Text = []byte(renderDigest(digest))

	err = mail.Send(
		fmt.Sprintf("%s:%d", s.config.Smtp.Server, s.config.Smtp.Port),
		smtp.PlainAuth("", s.config.Smtp.EmailAddress, s.config.Smtp.Password, s.config.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(fmt.Sprintf("%s:%d", s.config.Smtp.Server, s.config.Smtp.Port), nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to send email")
			return err
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}

	return nil
}
