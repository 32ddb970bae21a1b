// Package email is the email tool service: SMTP sending, guided
// composition, address validation, and the template catalog.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

const toolName = "email"

// recordTTL is how long sent-mail records survive in the shared KV.
const recordTTL = 30 * 24 * time.Hour

var capabilities = []string{
	"send_email",
	"compose_email",
	"validate_email",
	"manage_templates",
}

var addressRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// template wraps a body with a greeting and closing.
type template struct {
	Subject  string
	Greeting string
	Closing  string
}

var templates = map[string]template{
	"default": {
		Subject:  "Message from Voxbridge",
		Greeting: "Hello,",
		Closing:  "Best regards,\nVoxbridge Assistant",
	},
	"professional": {
		Subject:  "Professional Communication",
		Greeting: "Dear Sir/Madam,",
		Closing:  "Sincerely,\nVoxbridge Assistant",
	},
	"casual": {
		Subject:  "Quick Message",
		Greeting: "Hi there!",
		Closing:  "Cheers,\nVoxbridge",
	},
}

// Sender delivers one assembled message. The SMTP implementation is
// swapped for a fake in tests.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPConfig configures the real SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpSender struct {
	cfg SMTPConfig
}

func (s smtpSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	return smtp.SendMail(addr, auth, from, to, msg)
}

// Service implements the broker tool contract for email.
type Service struct {
	sender  Sender
	from    string
	rdb     redis.Cmdable
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// Options configures the email service.
type Options struct {
	SMTP SMTPConfig

	// Sender overrides the SMTP sender; used by tests.
	Sender Sender

	// Redis stores sent-mail records when non-nil.
	Redis  redis.Cmdable
	Logger *slog.Logger
}

// New builds the email service.
func New(opts Options) *Service {
	sender := opts.Sender
	if sender == nil {
		sender = smtpSender{cfg: opts.SMTP}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		sender: sender,
		from:   opts.SMTP.From,
		rdb:    opts.Redis,
		logger: opts.Logger,
		now:    time.Now,
	}
}

func (s *Service) Name() string           { return toolName }
func (s *Service) Capabilities() []string { return append([]string(nil), capabilities...) }

func (s *Service) Start(context.Context) error {
	if s.from == "" {
		s.logger.Warn("email sender address not configured, sends will be refused")
	}
	s.running.Store(true)
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.running.Store(false)
	return nil
}

func (s *Service) Ping(context.Context) error {
	if !s.running.Load() {
		return fault.New(fault.KindToolStopped, toolName, "not running")
	}
	return nil
}

// Execute dispatches one email command.
func (s *Service) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	switch command {
	case "send_email":
		return s.sendEmail(ctx, params)
	case "compose_email":
		return s.composeEmail(params)
	case "validate_email":
		return s.validateEmail(params)
	case "manage_templates":
		return s.manageTemplates(params)
	default:
		return nil, fault.Newf(fault.KindUnsupportedCommand, toolName, "unknown command %q", command)
	}
}

func (s *Service) sendEmail(ctx context.Context, params map[string]string) (map[string]any, error) {
	to := strings.TrimSpace(params["to"])
	if !addressRe.MatchString(to) {
		return nil, fault.Newf(fault.KindInvalidInput, toolName, "invalid recipient address %q", to)
	}
	if s.from == "" {
		return nil, fault.New(fault.KindToolError, toolName, "no sender address configured")
	}

	cc := splitAddresses(params["cc"])
	bcc := splitAddresses(params["bcc"])
	for _, addr := range append(append([]string(nil), cc...), bcc...) {
		if !addressRe.MatchString(addr) {
			return nil, fault.Newf(fault.KindInvalidInput, toolName, "invalid copy address %q", addr)
		}
	}

	subject := params["subject"]
	body := params["body"]
	if tpl, ok := templates[params["template"]]; ok {
		if subject == "" {
			subject = tpl.Subject
		}
		body = tpl.Greeting + "\n\n" + body + "\n\n" + tpl.Closing
	}

	msg := buildMessage(s.from, to, cc, subject, body, params["html_body"])
	recipients := append([]string{to}, append(cc, bcc...)...)

	if err := s.sender.Send(ctx, s.from, recipients, msg); err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "smtp send failed", err)
	}

	messageID := uuid.NewString()
	sentAt := s.now().UTC()
	s.storeRecord(ctx, messageID, to, subject, sentAt, len(recipients))

	s.logger.Info("email sent", "message_id", messageID, "recipients", len(recipients))

	return map[string]any{
		"message_id": messageID,
		"status":     "sent",
		"sent_at":    sentAt.Format("2006-01-02 15:04:05 UTC"),
		"recipients": len(recipients),
	}, nil
}

// storeRecord mirrors a sent-mail record into the shared KV. Failures are
// logged and swallowed; record keeping never fails a send.
func (s *Service) storeRecord(ctx context.Context, messageID, to, subject string, sentAt time.Time, recipients int) {
	if s.rdb == nil {
		return
	}
	key := "email_record:" + messageID
	err := s.rdb.HSet(ctx, key,
		"to", to,
		"subject", subject,
		"sent_at", sentAt.Format(time.RFC3339),
		"recipients", recipients,
	).Err()
	if err == nil {
		err = s.rdb.Expire(ctx, key, recordTTL).Err()
	}
	if err != nil {
		s.logger.Warn("email record write failed", "message_id", messageID, "error", err)
	}
}

func (s *Service) composeEmail(params map[string]string) (map[string]any, error) {
	prompt := strings.TrimSpace(params["prompt"])
	if prompt == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "prompt is required")
	}
	tone := params["tone"]
	if tone == "" {
		tone = "professional"
	}

	greeting := "Dear Sir/Madam,"
	closing := "Best regards,"
	if tpl, ok := templates[params["template"]]; ok {
		greeting = tpl.Greeting
		closing = tpl.Closing
	} else if name := params["name"]; name != "" {
		greeting = "Dear " + name + ","
	} else if tone == "casual" {
		greeting = "Hello,"
		closing = "Thanks!"
	}

	var main string
	if tone == "casual" {
		main = "Hope you're doing well!\n\n" + prompt + "\n\nLet me know what you think!"
	} else {
		main = "I hope this email finds you well.\n\n" + prompt + "\n\nI look forward to your response."
	}
	body := greeting + "\n\n" + main + "\n\n" + closing

	words := len(strings.Fields(body))
	return map[string]any{
		"subject":             subjectFor(prompt, tone),
		"body":                body,
		"tone":                tone,
		"word_count":          words,
		"estimated_read_time": words/200 + 1,
	}, nil
}

func subjectFor(prompt, tone string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "meeting"):
		if tone == "casual" {
			return "Let's meet up!"
		}
		return "Meeting Request"
	case strings.Contains(lower, "follow up"):
		return "Follow-up on our conversation"
	case strings.Contains(lower, "thank"):
		return "Thank you"
	default:
		return "Message from Voxbridge"
	}
}

func (s *Service) validateEmail(params map[string]string) (map[string]any, error) {
	addr := strings.TrimSpace(params["email"])
	result := map[string]any{"email": addr, "is_valid": false}
	if addressRe.MatchString(addr) {
		local, domain, _ := strings.Cut(addr, "@")
		result["is_valid"] = true
		result["local_part"] = local
		result["domain"] = domain
	}
	return result, nil
}

func (s *Service) manageTemplates(params map[string]string) (map[string]any, error) {
	switch params["action"] {
	case "", "list":
		names := make([]string, 0, len(templates))
		for name := range templates {
			names = append(names, name)
		}
		return map[string]any{"templates": names}, nil
	case "get":
		tpl, ok := templates[params["name"]]
		if !ok {
			return nil, fault.Newf(fault.KindNotFound, toolName, "no template named %q", params["name"])
		}
		return map[string]any{
			"name":     params["name"],
			"subject":  tpl.Subject,
			"greeting": tpl.Greeting,
			"closing":  tpl.Closing,
		}, nil
	default:
		return nil, fault.Newf(fault.KindInvalidInput, toolName, "unknown action %q", params["action"])
	}
}

func splitAddresses(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var out []string
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// buildMessage assembles an RFC 5322 message, multipart/alternative when
// an HTML body is supplied.
func buildMessage(from, to string, cc []string, subject, body, htmlBody string) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	if len(cc) > 0 {
		fmt.Fprintf(&sb, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		sb.WriteString(body)
		return []byte(sb.String())
	}

	const boundary = "voxbridge-alt"
	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&sb, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
	fmt.Fprintf(&sb, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)
	return []byte(sb.String())
}
