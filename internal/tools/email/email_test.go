package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

type fakeSender struct {
	from string
	to   []string
	msg  []byte
	err  error
}

func (f *fakeSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	f.from = from
	f.to = to
	f.msg = msg
	return f.err
}

func newTestService(sender *fakeSender) *Service {
	s := New(Options{
		SMTP:   SMTPConfig{From: "assistant@voxbridge.example"},
		Sender: sender,
	})
	_ = s.Start(context.Background())
	return s
}

func TestSendEmail(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	result, err := s.Execute(context.Background(), "send_email", map[string]string{
		"to":      "ana@example.com",
		"cc":      "bob@example.com, carol@example.com",
		"subject": "Launch update",
		"body":    "The rollout finished on schedule.",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result["status"] != "sent" {
		t.Errorf("status = %v", result["status"])
	}
	if result["message_id"] == "" {
		t.Error("message_id missing")
	}
	if result["recipients"] != 3 {
		t.Errorf("recipients = %v, want 3", result["recipients"])
	}

	if sender.from != "assistant@voxbridge.example" {
		t.Errorf("from = %s", sender.from)
	}
	if len(sender.to) != 3 || sender.to[0] != "ana@example.com" {
		t.Errorf("to = %v", sender.to)
	}
	msg := string(sender.msg)
	for _, want := range []string{
		"To: ana@example.com",
		"Cc: bob@example.com, carol@example.com",
		"Subject: Launch update",
		"The rollout finished on schedule.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendEmailAppliesTemplate(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	result, err := s.Execute(context.Background(), "send_email", map[string]string{
		"to":       "ana@example.com",
		"body":     "See attached roadmap.",
		"template": "professional",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	msg := string(sender.msg)
	if !strings.Contains(msg, "Subject: Professional Communication") {
		t.Error("template subject not applied when subject empty")
	}
	if !strings.Contains(msg, "Dear Sir/Madam,") || !strings.Contains(msg, "Sincerely,") {
		t.Error("template greeting/closing not applied")
	}
	_ = result
}

func TestSendEmailHTMLAlternative(t *testing.T) {
	sender := &fakeSender{}
	s := newTestService(sender)

	_, err := s.Execute(context.Background(), "send_email", map[string]string{
		"to":        "ana@example.com",
		"subject":   "hi",
		"body":      "plain",
		"html_body": "<p>rich</p>",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	msg := string(sender.msg)
	if !strings.Contains(msg, "multipart/alternative") {
		t.Error("expected multipart/alternative message")
	}
	if !strings.Contains(msg, "<p>rich</p>") || !strings.Contains(msg, "plain") {
		t.Error("both bodies should be present")
	}
}

func TestSendEmailValidation(t *testing.T) {
	s := newTestService(&fakeSender{})
	ctx := context.Background()

	if _, err := s.Execute(ctx, "send_email", map[string]string{"to": "not-an-address"}); !fault.Is(err, fault.KindInvalidInput) {
		t.Errorf("bad recipient kind = %v, want invalid_input", fault.KindOf(err))
	}
	if _, err := s.Execute(ctx, "send_email", map[string]string{
		"to": "ana@example.com",
		"cc": "broken@",
	}); !fault.Is(err, fault.KindInvalidInput) {
		t.Errorf("bad cc kind = %v, want invalid_input", fault.KindOf(err))
	}
}

func TestSendEmailSMTPFailure(t *testing.T) {
	s := newTestService(&fakeSender{err: errors.New("connection refused")})

	_, err := s.Execute(context.Background(), "send_email", map[string]string{
		"to":   "ana@example.com",
		"body": "hi",
	})
	if !fault.Is(err, fault.KindToolError) {
		t.Errorf("kind = %v, want tool_error", fault.KindOf(err))
	}
}

func TestComposeEmail(t *testing.T) {
	s := newTestService(&fakeSender{})

	result, err := s.Execute(context.Background(), "compose_email", map[string]string{
		"prompt": "schedule a meeting about the budget",
		"name":   "Ana",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result["subject"] != "Meeting Request" {
		t.Errorf("subject = %v", result["subject"])
	}
	body := result["body"].(string)
	if !strings.HasPrefix(body, "Dear Ana,") {
		t.Errorf("greeting not personalized:\n%s", body)
	}
	if !strings.Contains(body, "schedule a meeting about the budget") {
		t.Error("prompt not woven into body")
	}
	if result["word_count"].(int) == 0 {
		t.Error("word_count missing")
	}
}

func TestComposeEmailCasualTone(t *testing.T) {
	s := newTestService(&fakeSender{})

	result, err := s.Execute(context.Background(), "compose_email", map[string]string{
		"prompt": "thank them for the demo",
		"tone":   "casual",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["subject"] != "Thank you" {
		t.Errorf("subject = %v", result["subject"])
	}
	if !strings.Contains(result["body"].(string), "Hope you're doing well!") {
		t.Error("casual body style not applied")
	}
}

func TestValidateEmail(t *testing.T) {
	s := newTestService(&fakeSender{})

	tests := []struct {
		email string
		valid bool
	}{
		{"ana@example.com", true},
		{"first.last+tag@sub.domain.org", true},
		{"no-at-sign", false},
		{"trailing@dot.", false},
		{"@missing-local.com", false},
	}
	for _, tt := range tests {
		result, err := s.Execute(context.Background(), "validate_email", map[string]string{"email": tt.email})
		if err != nil {
			t.Fatalf("validate %q: %v", tt.email, err)
		}
		if result["is_valid"] != tt.valid {
			t.Errorf("%q valid = %v, want %v", tt.email, result["is_valid"], tt.valid)
		}
	}

	result, _ := s.Execute(context.Background(), "validate_email", map[string]string{"email": "ana@example.com"})
	if result["local_part"] != "ana" || result["domain"] != "example.com" {
		t.Errorf("parts = %v / %v", result["local_part"], result["domain"])
	}
}

func TestManageTemplates(t *testing.T) {
	s := newTestService(&fakeSender{})
	ctx := context.Background()

	result, err := s.Execute(ctx, "manage_templates", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result["templates"].([]string)) != 3 {
		t.Errorf("templates = %v", result["templates"])
	}

	result, err = s.Execute(ctx, "manage_templates", map[string]string{"action": "get", "name": "casual"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if result["greeting"] != "Hi there!" {
		t.Errorf("greeting = %v", result["greeting"])
	}

	if _, err := s.Execute(ctx, "manage_templates", map[string]string{"action": "get", "name": "nope"}); !fault.Is(err, fault.KindNotFound) {
		t.Errorf("missing template kind = %v, want not_found", fault.KindOf(err))
	}
}

func TestUnknownCommand(t *testing.T) {
	s := newTestService(&fakeSender{})
	if _, err := s.Execute(context.Background(), "read_inbox_v2", nil); !fault.Is(err, fault.KindUnsupportedCommand) {
		t.Errorf("kind = %v, want unsupported_command", fault.KindOf(err))
	}
}
