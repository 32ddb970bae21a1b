package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(Options{OutputDir: t.TempDir()})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestGenerateMarkdown(t *testing.T) {
	s := newTestService(t)

	result, err := s.Execute(context.Background(), "generate_markdown", map[string]string{
		"content": "Quarterly revenue grew 12%.\n\nChurn held steady.",
		"title":   "Q3 Report",
		"author":  "Ana",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := base64.StdEncoding.DecodeString(result["document_data"].(string))
	if err != nil {
		t.Fatalf("document_data is not base64: %v", err)
	}
	text := string(data)
	for _, want := range []string{"# Q3 Report", "**Author:** Ana", "---", "Churn held steady."} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown missing %q:\n%s", want, text)
		}
	}
	if result["file_size"].(int) != len(data) {
		t.Errorf("file_size = %v, want %d", result["file_size"], len(data))
	}

	// The file lands in the output directory.
	path := result["file_path"].(string)
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if string(onDisk) != text {
		t.Error("file on disk differs from returned data")
	}
	if filepath.Ext(path) != ".md" {
		t.Errorf("extension = %s, want .md", filepath.Ext(path))
	}
}

func TestGeneratePDF(t *testing.T) {
	s := newTestService(t)

	result, err := s.Execute(context.Background(), "generate_pdf", map[string]string{
		"content": "Machine learning adoption accelerated across the fleet.",
		"title":   "Adoption (2026)",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, _ := base64.StdEncoding.DecodeString(result["document_data"].(string))
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Errorf("missing PDF header: %q", string(data[:16]))
	}
	if !strings.HasSuffix(strings.TrimSpace(string(data)), "%%EOF") {
		t.Error("missing PDF trailer")
	}
	text, err := extractPDF(data)
	if err != nil {
		t.Fatalf("extractPDF: %v", err)
	}
	for _, want := range []string{"Adoption (2026)", "Machine learning adoption"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
	if result["format"] != "pdf" {
		t.Errorf("format = %v", result["format"])
	}
}

func TestPDFPagination(t *testing.T) {
	long := strings.Repeat("One short paragraph of filler text for page overflow.\n\n", 120)
	data, err := writePDF("Long", splitParagraphs(long))
	if err != nil {
		t.Fatalf("writePDF: %v", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parse generated pdf: %v", err)
	}
	if reader.NumPage() < 2 {
		t.Errorf("expected multiple pages, got %d", reader.NumPage())
	}
}

func TestDocxRoundTrip(t *testing.T) {
	s := newTestService(t)

	generated, err := s.Execute(context.Background(), "generate_docx", map[string]string{
		"content": "First paragraph about whales.\n\nSecond paragraph about krill.",
		"title":   "Ocean Notes",
		"author":  "Sam",
	})
	if err != nil {
		t.Fatalf("generate_docx: %v", err)
	}

	extracted, err := s.Execute(context.Background(), "extract_text", map[string]string{
		"document_data": generated["document_data"].(string),
		"format":        "docx",
	})
	if err != nil {
		t.Fatalf("extract_text: %v", err)
	}

	text := extracted["text"].(string)
	for _, want := range []string{"Ocean Notes", "By: Sam", "First paragraph about whales.", "Second paragraph about krill."} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q:\n%s", want, text)
		}
	}
	if extracted["word_count"].(int) == 0 {
		t.Error("word_count should be non-zero")
	}
}

func TestDocxEscapesMarkup(t *testing.T) {
	data, err := writeDocx("", "", []string{"5 < 6 & \"quotes\""})
	if err != nil {
		t.Fatalf("writeDocx: %v", err)
	}
	text, err := extractDocx(data)
	if err != nil {
		t.Fatalf("extractDocx: %v", err)
	}
	if !strings.Contains(text, `5 < 6 & "quotes"`) {
		t.Errorf("markup not round-tripped: %q", text)
	}
}

func TestExtractTextPlainPassthrough(t *testing.T) {
	s := newTestService(t)

	result, err := s.Execute(context.Background(), "extract_text", map[string]string{
		"document_data": base64.StdEncoding.EncodeToString([]byte("just some notes")),
		"format":        "txt",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["text"] != "just some notes" {
		t.Errorf("text = %v", result["text"])
	}
}

func TestConvertFormat(t *testing.T) {
	s := newTestService(t)

	docxResult, err := s.Execute(context.Background(), "generate_docx", map[string]string{
		"content": "Meeting notes from Tuesday.",
	})
	if err != nil {
		t.Fatalf("generate_docx: %v", err)
	}

	converted, err := s.Execute(context.Background(), "convert_format", map[string]string{
		"document_data": docxResult["document_data"].(string),
		"source_format": "docx",
		"target_format": "markdown",
		"title":         "Notes",
	})
	if err != nil {
		t.Fatalf("convert_format: %v", err)
	}
	if converted["format"] != "markdown" {
		t.Errorf("format = %v", converted["format"])
	}
	data, _ := base64.StdEncoding.DecodeString(converted["document_data"].(string))
	if !strings.Contains(string(data), "Meeting notes from Tuesday.") {
		t.Errorf("converted content lost:\n%s", data)
	}
}

func TestExecuteValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Execute(ctx, "generate_pdf", map[string]string{"content": "  "}); err == nil {
		t.Error("empty content should fail")
	}
	if _, err := s.Execute(ctx, "extract_text", map[string]string{"document_data": "not-base64!!"}); err == nil {
		t.Error("invalid base64 should fail")
	}
	if _, err := s.Execute(ctx, "launch_rocket", nil); err == nil {
		t.Error("unknown command should fail")
	}
	if _, err := s.Execute(ctx, "convert_format", map[string]string{"document_data": ""}); err == nil {
		t.Error("missing target_format should fail")
	}
}

func TestPingRequiresStart(t *testing.T) {
	s := New(Options{OutputDir: t.TempDir()})
	if err := s.Ping(context.Background()); err == nil {
		t.Error("ping before start should fail")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping after start: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("ping after shutdown should fail")
	}
}
