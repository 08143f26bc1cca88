package mailparse

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func quietParser() *LineParser {
	return NewLineParser(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseHeaders_FoldedContinuation(t *testing.T) {
	headers := ParseHeaders("Subject: Hi\n  there\n\nBody")

	if got := headers["Subject"]; got != "Hi there" {
		t.Errorf("Subject: got %q, want %q", got, "Hi there")
	}
}

func TestParseHeaders_LastValueWins(t *testing.T) {
	raw := "Received: first hop\nReceived: second hop\nFrom: a@b.c\n\nBody"
	headers := ParseHeaders(raw)

	if got := headers["Received"]; got != "second hop" {
		t.Errorf("Received: got %q, want %q", got, "second hop")
	}
	if got := headers["From"]; got != "a@b.c" {
		t.Errorf("From: got %q, want %q", got, "a@b.c")
	}
}

func TestParseHeaders_StopsAtBlankLine(t *testing.T) {
	raw := "Subject: real\n\nNot-A-Header: from the body"
	headers := ParseHeaders(raw)

	if _, ok := headers["Not-A-Header"]; ok {
		t.Error("header parsing should stop at the first blank line")
	}
	if len(headers) != 1 {
		t.Errorf("expected 1 header, got %d", len(headers))
	}
}

func TestParseHeaders_LineWithoutColonIsDropped(t *testing.T) {
	raw := "Subject: hello\ngarbage line without separator\nFrom: a@b.c\n\n"
	headers := ParseHeaders(raw)

	if got := headers["Subject"]; got != "hello" {
		t.Errorf("Subject: got %q, want %q", got, "hello")
	}
	if got := headers["From"]; got != "a@b.c" {
		t.Errorf("From: got %q, want %q", got, "a@b.c")
	}
}

func TestParseHeaders_CRLFInput(t *testing.T) {
	headers := ParseHeaders("Subject: Hi\r\n\tthere\r\n\r\nBody")

	if got := headers["Subject"]; got != "Hi there" {
		t.Errorf("Subject: got %q, want %q", got, "Hi there")
	}
}

// A message whose body carries no part markers at all falls back to plain
// text, but the fallback only runs while nothing has accumulated yet, so
// only the first body line survives.
func TestExtractBody_FlatFallbackProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lineCount := rapid.IntRange(1, 8).Draw(t, "lineCount")
		lines := make([]string, lineCount)
		for i := range lines {
			lines[i] = rapid.StringMatching(`[a-z0-9][a-z0-9 ]{0,30}`).Draw(t, fmt.Sprintf("line%d", i))
		}
		body := strings.Join(lines, "\n")

		raw := "From: sender@example.com\nSubject: flat\n\n" + body

		text, html := ExtractBody(raw)
		if text != strings.TrimSpace(lines[0]) {
			t.Errorf("text body: got %q, want %q", text, strings.TrimSpace(lines[0]))
		}
		if html != "" {
			t.Errorf("html body should be empty, got %q", html)
		}
	})
}

// A content-type line that matches neither text/plain nor text/html leaves
// both part flags clear, so the part's lines land in the plain-text fallback
// while no body content has accumulated.
func TestExtractBody_UnmatchedContentTypeFallsBackToText(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: pictures",
		"",
		"--b1",
		"Content-Type: image/png",
		"iVBORw0KGgo=",
		"--b1--",
	}, "\n")

	text, html := ExtractBody(raw)
	if text != "iVBORw0KGgo=" {
		t.Errorf("text body: got %q, want %q", text, "iVBORw0KGgo=")
	}
	if html != "" {
		t.Errorf("html body should be empty, got %q", html)
	}
}

func TestExtractBody_FallbackStopsOnceContentAccumulated(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: mixed",
		"",
		"--b1",
		"Content-Type: text/plain",
		"hello there",
		"--b1",
		"Content-Type: image/png",
		"iVBORw0KGgo=",
		"--b1--",
	}, "\n")

	text, html := ExtractBody(raw)
	if text != "hello there" {
		t.Errorf("text body: got %q, want %q", text, "hello there")
	}
	if html != "" {
		t.Errorf("html body should be empty, got %q", html)
	}
}

func TestExtractBody_TextAndHTMLSeparation(t *testing.T) {
	raw := strings.Join([]string{
		"From: sender@example.com",
		"Content-Type: multipart/alternative; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"plain line one",
		"plain line two",
		"--b1",
		"Content-Type: text/html",
		"<p>rich line</p>",
		"--b1--",
	}, "\n")

	text, html := ExtractBody(raw)

	if text != "plain line one\nplain line two" {
		t.Errorf("text body: got %q", text)
	}
	if html != "<p>rich line</p>" {
		t.Errorf("html body: got %q", html)
	}
	if strings.Contains(text, "rich") || strings.Contains(html, "plain") {
		t.Error("text and html bodies must not cross-contaminate")
	}
}

func TestExtractBody_BoundaryResetsPartFlags(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: x",
		"",
		"--b1",
		"Content-Type: text/plain",
		"kept",
		"--b1",
		"dropped: no active part after boundary",
		"--b1--",
	}, "\n")

	text, _ := ExtractBody(raw)
	if text != "kept" {
		t.Errorf("text body: got %q, want %q", text, "kept")
	}
}

func buildAttachmentMessage(filename, contentType string, data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	// wrap the base64 text like a real MTA would
	var wrapped []string
	for len(encoded) > 60 {
		wrapped = append(wrapped, encoded[:60])
		encoded = encoded[60:]
	}
	wrapped = append(wrapped, encoded)

	lines := []string{
		"From: sender@example.com",
		"",
		"--b1",
		fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"", filename),
	}
	if contentType != "" {
		lines = append(lines, "Content-Type: "+contentType)
	}
	lines = append(lines, "Content-Transfer-Encoding: base64", "")
	lines = append(lines, wrapped...)
	lines = append(lines, "--b1--")
	return strings.Join(lines, "\n")
}

// Decoding an extracted attachment must reproduce the original bytes, with
// the checksum computed over decoded content and the size matching it.
func TestExtractAttachments_RoundTripProperty(t *testing.T) {
	parser := quietParser()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "data")
		filename := rapid.StringMatching(`[a-z]{1,10}\.(pdf|png|zip)`).Draw(t, "filename")

		raw := buildAttachmentMessage(filename, "application/octet-stream", data)
		attachments := parser.ExtractAttachments(raw)

		if len(attachments) != 1 {
			t.Fatalf("expected 1 attachment, got %d", len(attachments))
		}
		att := attachments[0]

		if att.Filename != filename {
			t.Errorf("filename: got %q, want %q", att.Filename, filename)
		}
		if att.SizeBytes != int64(len(data)) {
			t.Errorf("size: got %d, want %d", att.SizeBytes, len(data))
		}
		if string(att.Content) != string(data) {
			t.Error("decoded content does not match original bytes")
		}

		sum := sha256.Sum256(data)
		if att.Checksum != hex.EncodeToString(sum[:]) {
			t.Errorf("checksum mismatch: got %q", att.Checksum)
		}
	})
}

func TestExtractAttachments_MalformedBase64DoesNotAbortOthers(t *testing.T) {
	parser := quietParser()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"",
		"--b1",
		"Content-Disposition: attachment; filename=\"broken.bin\"",
		"Content-Transfer-Encoding: base64",
		"",
		"!!!not base64 at all!!!",
		"--b1",
		"Content-Disposition: attachment; filename=\"ok.txt\"",
		"Content-Type: text/plain",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte("survives")),
		"--b1--",
	}, "\n")

	attachments := parser.ExtractAttachments(raw)

	if len(attachments) != 1 {
		t.Fatalf("expected 1 surviving attachment, got %d", len(attachments))
	}
	if attachments[0].Filename != "ok.txt" {
		t.Errorf("surviving attachment: got %q, want %q", attachments[0].Filename, "ok.txt")
	}
	if string(attachments[0].Content) != "survives" {
		t.Errorf("content: got %q", attachments[0].Content)
	}
}

func TestExtractAttachments_DefaultContentType(t *testing.T) {
	parser := quietParser()

	raw := buildAttachmentMessage("noctype.bin", "", []byte{0x01, 0x02})
	attachments := parser.ExtractAttachments(raw)

	if len(attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(attachments))
	}
	if attachments[0].ContentType != "application/octet-stream" {
		t.Errorf("content type: got %q, want application/octet-stream", attachments[0].ContentType)
	}
}

func TestExtractAttachments_UnquotedAndStarredFilenames(t *testing.T) {
	parser := quietParser()
	payload := base64.StdEncoding.EncodeToString([]byte("x"))

	cases := []struct {
		line string
		want string
	}{
		{"Content-Disposition: attachment; filename=report.pdf", "report.pdf"},
		{"Content-Disposition: attachment; filename*='utf8.bin'", "utf8.bin"},
		{"Content-Disposition: attachment; filename=\"with space.txt\"", "with space.txt"},
	}

	for _, tc := range cases {
		raw := strings.Join([]string{
			"From: a@b.c",
			"",
			"--b1",
			tc.line,
			"",
			payload,
			"--b1--",
		}, "\n")

		attachments := parser.ExtractAttachments(raw)
		if len(attachments) != 1 {
			t.Fatalf("%s: expected 1 attachment, got %d", tc.line, len(attachments))
		}
		if attachments[0].Filename != tc.want {
			t.Errorf("%s: filename got %q, want %q", tc.line, attachments[0].Filename, tc.want)
		}
	}
}

func TestParse_CombinesAllPasses(t *testing.T) {
	parser := quietParser()

	raw := strings.Join([]string{
		"From: sender@example.com",
		"Subject: Hi",
		"  there",
		"",
		"--b1",
		"Content-Type: text/plain",
		"body text",
		"--b1",
		"Content-Disposition: attachment; filename=\"a.txt\"",
		"Content-Transfer-Encoding: base64",
		"",
		base64.StdEncoding.EncodeToString([]byte("abc")),
		"--b1--",
	}, "\n")

	content := parser.Parse(raw)

	if content.Headers["Subject"] != "Hi there" {
		t.Errorf("Subject: got %q", content.Headers["Subject"])
	}
	if content.TextBody != "body text" {
		t.Errorf("text body: got %q", content.TextBody)
	}
	if len(content.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(content.Attachments))
	}
}
