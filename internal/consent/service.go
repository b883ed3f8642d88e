// internal/consent/service.go
package consent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/vespa-academy/homepage-backend/internal/knack"
	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// Consent answer field codes on the student object.
const (
	fieldConfirmRead        = "field_3743"
	fieldTimeToConsider     = "field_3744"
	fieldFreeToWithdraw     = "field_3745"
	fieldAgreeParticipate   = "field_3746"
	fieldPermissionResearch = "field_3747"
	fieldSignature          = "field_3748"
)

// ErrRecordNotFound means no student record matched the submitted email.
// Nothing is written and no session is requested in that case.
var ErrRecordNotFound = errors.New("student record not found")

// ErrNotConfigured means the server is missing its Knack credentials or the
// login password. The consent flow never accepts caller-supplied ones, so
// this is a deployment fault.
var ErrNotConfigured = errors.New("consent flow is not configured")

// ValidationError rejects a submission before any upstream call is made.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

// RecordAPI is the slice of the Knack client the consent flow needs.
type RecordAPI interface {
	FindFirstRecord(ctx context.Context, creds knack.Credentials, object string, filter knack.Filter) (knack.Record, error)
	UpdateRecord(ctx context.Context, creds knack.Credentials, object, recordID string, fields map[string]any) error
	Login(ctx context.Context, applicationID, email, password string) (*knack.LoginResponse, error)
}

type Config struct {
	// Object is the Knack object holding student accounts.
	Object string
	// EmailField is the email field code used for the lookup.
	EmailField string
	// AllowedDomains restricts which email domains may submit.
	AllowedDomains []string
	// Password is the institutional default used for the auto-login. Every
	// account shares it; there is no per-user credential on this boundary.
	Password string
	// RedirectURL is handed back to the caller after a successful login.
	RedirectURL string
	// Credentials are the server-side Knack credentials. The consent flow
	// never accepts caller-supplied ones.
	Credentials knack.Credentials
}

func (c Config) withDefaults() Config {
	if c.Object == "" {
		c.Object = "object_10"
	}
	if c.EmailField == "" {
		c.EmailField = "field_84"
	}
	if len(c.AllowedDomains) == 0 {
		c.AllowedDomains = []string{"mmu.ac.uk", "stu.mmu.ac.uk"}
	}
	return c
}

// Service handles one consent form submission end to end: validate, look up
// the single matching record, write the consent fields, then log the student
// in. It is synchronous; there is no batching or job state here.
type Service struct {
	records RecordAPI
	cfg     Config
	logger  *slog.Logger
}

func New(records RecordAPI, cfg Config, logger *slog.Logger) *Service {
	return &Service{records: records, cfg: cfg.withDefaults(), logger: logger}
}

// Result is the session credential and redirect target returned on success.
type Result struct {
	Session     any
	RedirectURL string
}

func (s *Service) Submit(ctx context.Context, req schema.ConsentRequest) (*Result, error) {
	if !s.cfg.Credentials.Valid() || s.cfg.Password == "" {
		return nil, ErrNotConfigured
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	logger := s.logger.With("email", req.Email)

	filter := knack.EqualityFilter(s.cfg.EmailField, req.Email)
	record, err := s.records.FindFirstRecord(ctx, s.cfg.Credentials, s.cfg.Object, filter)
	if err != nil {
		return nil, fmt.Errorf("find student record: %w", err)
	}
	if record == nil {
		logger.Warn("consent submission for unknown student")
		return nil, ErrRecordNotFound
	}

	fields := map[string]any{
		fieldConfirmRead:        req.Responses.ConfirmRead,
		fieldTimeToConsider:     req.Responses.TimeToConsider,
		fieldFreeToWithdraw:     req.Responses.FreeToWithdraw,
		fieldAgreeParticipate:   req.Responses.AgreeParticipate,
		fieldPermissionResearch: req.Responses.PermissionResearch,
		fieldSignature:          summaryHTML(req),
	}
	if err := s.records.UpdateRecord(ctx, s.cfg.Credentials, s.cfg.Object, record.ID(), fields); err != nil {
		return nil, fmt.Errorf("write consent fields: %w", err)
	}
	logger.Info("consent recorded", "record_id", record.ID())

	login, err := s.records.Login(ctx, s.cfg.Credentials.ApplicationID, req.Email, s.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("login after consent: %w", err)
	}
	logger.Info("student logged in")

	return &Result{Session: login.Session, RedirectURL: s.cfg.RedirectURL}, nil
}

func (s *Service) validate(req schema.ConsentRequest) error {
	if req.Email == "" || req.ParticipantName == "" || req.Date == "" || req.Responses == nil || req.SignatureData == "" {
		return ValidationError{Message: "all form fields must be completed"}
	}
	email := strings.ToLower(req.Email)
	for _, domain := range s.cfg.AllowedDomains {
		if strings.HasSuffix(email, "@"+domain) {
			return nil
		}
	}
	return ValidationError{Message: "email domain is not permitted"}
}

// summaryHTML renders the completed form as rich text for the signature
// field: participant details, the five answers, and the signature image.
func summaryHTML(req schema.ConsentRequest) string {
	var b strings.Builder
	b.WriteString(`<div style="border: 1px solid #ddd; padding: 10px; margin: 10px 0;">`)
	b.WriteString("<h3>Consent Form - Completed</h3>")
	fmt.Fprintf(&b, "<p><strong>Participant Name:</strong> %s</p>", html.EscapeString(req.ParticipantName))
	fmt.Fprintf(&b, "<p><strong>Email:</strong> %s</p>", html.EscapeString(req.Email))
	fmt.Fprintf(&b, "<p><strong>Date:</strong> %s</p>", html.EscapeString(req.Date))
	b.WriteString("<h4>Consent Responses:</h4><ul>")
	fmt.Fprintf(&b, "<li>Read participant information sheet: %s</li>", yesNo(req.Responses.ConfirmRead))
	fmt.Fprintf(&b, "<li>Had time to consider: %s</li>", yesNo(req.Responses.TimeToConsider))
	fmt.Fprintf(&b, "<li>Free to withdraw: %s</li>", yesNo(req.Responses.FreeToWithdraw))
	fmt.Fprintf(&b, "<li>Agree to participate: %s</li>", yesNo(req.Responses.AgreeParticipate))
	fmt.Fprintf(&b, "<li>Permission for research: %s</li>", yesNo(req.Responses.PermissionResearch))
	b.WriteString("</ul><h4>Signature:</h4>")
	fmt.Fprintf(&b, `<img src="%s" alt="Participant Signature" style="max-width: 100%%; border: 1px solid #ccc; padding: 5px;">`, req.SignatureData)
	b.WriteString("</div>")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}
