// Package mailparse implements the simplified line-based email parser used
// for inbound mail. It walks a flat boundary structure and does not recurse
// into nested multiparts, decode RFC 2231 filenames, or transcode charsets.
// Callers depend on the Parser interface so a full MIME implementation can be
// substituted later without touching the inbound pipeline.
package mailparse

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"
)

// Attachment is one decoded attachment extracted from a raw message.
// Checksum is the SHA-256 hex digest of the decoded bytes, never of the
// base64 text.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	SizeBytes   int64
	Checksum    string
}

// Content is the result of parsing one raw message.
type Content struct {
	Headers     map[string]string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Parser parses raw message text into structured content.
type Parser interface {
	Parse(raw string) *Content
}

// LineParser is the line-oriented Parser implementation.
type LineParser struct {
	logger *slog.Logger
}

// NewLineParser creates a LineParser. A nil logger falls back to slog.Default.
func NewLineParser(logger *slog.Logger) *LineParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineParser{logger: logger}
}

// Parse runs the header, body, and attachment passes over the raw text.
func (p *LineParser) Parse(raw string) *Content {
	text, html := ExtractBody(raw)
	return &Content{
		Headers:     ParseHeaders(raw),
		TextBody:    text,
		HTMLBody:    html,
		Attachments: p.ExtractAttachments(raw),
	}
}

// ParseHeaders scans the header block up to the first blank line. A line
// starting with whitespace continues the previous value (joined with a single
// space). A repeated header name overwrites the earlier value. Lines without
// a colon are dropped without resetting the pending header, so malformed
// input can corrupt continuation accumulation; that matches the persisted
// header format already in production.
func ParseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	var name, value string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			break
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			value += " " + strings.TrimSpace(line)
			continue
		}
		if name != "" {
			headers[name] = strings.TrimSpace(value)
		}
		if idx := strings.Index(line, ":"); idx > 0 {
			name = strings.TrimSpace(line[:idx])
			value = strings.TrimSpace(line[idx+1:])
		}
	}

	if name != "" {
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}

// ExtractBody splits the text after the header/body blank line into plain
// and HTML bodies. A line starting with "--" is a boundary marker and resets
// both part flags; a line containing "content-type:" (any case) switches the
// active part and is consumed. Lines outside any recognized part fall back
// into the plain-text body, but only while no content has accumulated yet.
func ExtractBody(raw string) (textBody, htmlBody string) {
	var text, html strings.Builder
	inText := false
	inHTML := false
	inBody := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if !inBody {
			if strings.TrimSpace(line) == "" {
				inBody = true
			}
			continue
		}

		if strings.HasPrefix(line, "--") {
			inText = false
			inHTML = false
			continue
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "content-type:") {
			switch {
			case strings.Contains(lower, "text/plain"):
				inText, inHTML = true, false
			case strings.Contains(lower, "text/html"):
				inHTML, inText = true, false
			}
			continue
		}

		switch {
		case inText:
			text.WriteString(line)
			text.WriteByte('\n')
		case inHTML:
			html.WriteString(line)
			html.WriteByte('\n')
		case text.Len() == 0 && html.Len() == 0:
			text.WriteString(line)
			text.WriteByte('\n')
		}
	}

	return strings.TrimSpace(text.String()), strings.TrimSpace(html.String())
}

var (
	filenameRe    = regexp.MustCompile(`(?i)filename[*]?=['"]?([^'";\n]+)['"]?`)
	contentTypeRe = regexp.MustCompile(`(?i)content-type:\s*([^;\n]+)`)
)

// ExtractAttachments performs an independent pass over the raw text looking
// for "Content-Disposition: attachment" parts. Only base64 content is
// supported. A "--" boundary line finalizes the pending attachment; an
// attachment whose content fails to decode is dropped with a warning and
// never aborts extraction of the rest.
func (p *LineParser) ExtractAttachments(raw string) []Attachment {
	var attachments []Attachment
	inAttachment := false
	var filename, contentType string
	var content strings.Builder

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")

		switch {
		case strings.Contains(line, "Content-Disposition: attachment"):
			inAttachment = true
			if m := filenameRe.FindStringSubmatch(line); m != nil {
				filename = m[1]
			}

		case inAttachment && strings.Contains(line, "Content-Type:"):
			if m := contentTypeRe.FindStringSubmatch(line); m != nil {
				contentType = strings.TrimSpace(m[1])
			}

		case inAttachment && strings.Contains(line, "Content-Transfer-Encoding: base64"):
			// marker only; accumulation starts with the data lines

		case inAttachment && strings.HasPrefix(line, "--"):
			if filename != "" && content.Len() > 0 {
				att, err := finalizeAttachment(filename, contentType, content.String())
				if err != nil {
					p.logger.Warn("dropping attachment with undecodable content",
						"filename", filename, "error", err)
				} else {
					attachments = append(attachments, att)
				}
			}
			inAttachment = false
			filename = ""
			contentType = ""
			content.Reset()

		case inAttachment && strings.TrimSpace(line) != "":
			content.WriteString(strings.TrimSpace(line))
		}
	}

	return attachments
}

// finalizeAttachment decodes the accumulated base64 buffer and computes the
// checksum and size of the decoded bytes.
func finalizeAttachment(filename, contentType, encoded string) (Attachment, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return Attachment{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := sha256.Sum256(data)
	return Attachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     data,
		SizeBytes:   int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}
