// Package document is the document generation tool service. It produces
// PDF, DOCX, and Markdown files from plain text, extracts text back out of
// uploaded documents, and converts between the three formats.
package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

const toolName = "document"

var capabilities = []string{
	"generate_pdf",
	"generate_docx",
	"generate_markdown",
	"extract_text",
	"convert_format",
}

// Service implements the broker tool contract for document work.
type Service struct {
	outputDir string
	logger    *slog.Logger
	running   atomic.Bool
}

// Options configures the document service.
type Options struct {
	// OutputDir is where generated files land. Defaults to the OS temp dir.
	OutputDir string
	Logger    *slog.Logger
}

// New builds the document service.
func New(opts Options) *Service {
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{outputDir: opts.OutputDir, logger: opts.Logger}
}

func (s *Service) Name() string           { return toolName }
func (s *Service) Capabilities() []string { return append([]string(nil), capabilities...) }

// Start verifies the output directory is writable.
func (s *Service) Start(context.Context) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fault.Wrap(fault.KindToolError, toolName, "output dir unavailable", err)
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

// Execute dispatches one document command.
func (s *Service) Execute(ctx context.Context, command string, params map[string]string) (map[string]any, error) {
	switch command {
	case "generate_pdf":
		return s.generate(params, "pdf")
	case "generate_docx":
		return s.generate(params, "docx")
	case "generate_markdown":
		return s.generate(params, "markdown")
	case "extract_text":
		return s.extractText(params)
	case "convert_format":
		return s.convertFormat(params)
	default:
		return nil, fault.Newf(fault.KindUnsupportedCommand, toolName, "unknown command %q", command)
	}
}

var formatExtensions = map[string]string{
	"pdf":      ".pdf",
	"docx":     ".docx",
	"markdown": ".md",
}

func (s *Service) generate(params map[string]string, format string) (map[string]any, error) {
	content := params["content"]
	if strings.TrimSpace(content) == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "content is required")
	}
	title := params["title"]
	author := params["author"]

	start := time.Now()

	var data []byte
	switch format {
	case "pdf":
		var err error
		data, err = writePDF(title, splitParagraphs(content))
		if err != nil {
			return nil, fault.Wrap(fault.KindToolError, toolName, "pdf generation failed", err)
		}
	case "docx":
		var err error
		data, err = writeDocx(title, author, splitParagraphs(content))
		if err != nil {
			return nil, fault.Wrap(fault.KindToolError, toolName, "docx generation failed", err)
		}
	case "markdown":
		data = []byte(renderMarkdown(title, author, content))
	default:
		return nil, fault.Newf(fault.KindInvalidInput, toolName, "unsupported format %q", format)
	}

	filename := params["filename"]
	if filename == "" {
		filename = fmt.Sprintf("document_%d%s", time.Now().Unix(), formatExtensions[format])
	}
	path := filepath.Join(s.outputDir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "write failed", err)
	}

	s.logger.Info("document generated", "format", format, "bytes", len(data), "path", path)

	return map[string]any{
		"document_data":   base64.StdEncoding.EncodeToString(data),
		"format":          format,
		"file_size":       len(data),
		"filename":        filepath.Base(path),
		"file_path":       path,
		"processing_time": time.Since(start).Seconds(),
	}, nil
}

func (s *Service) extractText(params map[string]string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(params["document_data"])
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, toolName, "document_data is not valid base64", err)
	}
	format := strings.ToLower(params["format"])

	var text string
	switch format {
	case "pdf":
		text, err = extractPDF(data)
	case "docx":
		text, err = extractDocx(data)
	case "markdown", "md", "txt", "":
		text = string(data)
	default:
		return nil, fault.Newf(fault.KindInvalidInput, toolName, "unsupported format %q", format)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindToolError, toolName, "extraction failed", err)
	}

	return map[string]any{
		"text":       text,
		"format":     format,
		"word_count": len(strings.Fields(text)),
	}, nil
}

// convertFormat extracts text from the source document and regenerates it
// in the target format. Layout is not preserved, only text content.
func (s *Service) convertFormat(params map[string]string) (map[string]any, error) {
	source := strings.ToLower(params["source_format"])
	target := strings.ToLower(params["target_format"])
	if target == "" {
		return nil, fault.New(fault.KindInvalidInput, toolName, "target_format is required")
	}

	extracted, err := s.extractText(map[string]string{
		"document_data": params["document_data"],
		"format":        source,
	})
	if err != nil {
		return nil, err
	}

	return s.generate(map[string]string{
		"content":  extracted["text"].(string),
		"title":    params["title"],
		"filename": params["filename"],
	}, target)
}

func renderMarkdown(title, author, content string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString("# " + title + "\n\n")
	}
	if author != "" {
		sb.WriteString("**Author:** " + author + "\n\n")
	}
	if title != "" || author != "" {
		sb.WriteString("---\n\n")
	}
	sb.WriteString(content)
	return sb.String()
}

func splitParagraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
