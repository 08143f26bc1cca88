package sanitizer

import (
	"strings"
	"testing"
)

func TestSanitize_RemovesScripts(t *testing.T) {
	s := New(false)

	input := `<p>Hello</p><script>alert("xss")</script><p>World</p>`
	got := s.Sanitize(input)

	if strings.Contains(got, "script") || strings.Contains(got, "alert") {
		t.Errorf("script content survived: %q", got)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "World") {
		t.Errorf("legitimate content was removed: %q", got)
	}
}

func TestSanitize_RemovesEventHandlers(t *testing.T) {
	s := New(false)

	input := `<a href="https://example.com" onclick="steal()">link</a>`
	got := s.Sanitize(input)

	if strings.Contains(got, "onclick") || strings.Contains(got, "steal") {
		t.Errorf("event handler survived: %q", got)
	}
	if !strings.Contains(got, "link") {
		t.Errorf("link text was removed: %q", got)
	}
}

func TestSanitize_BlocksExternalImages(t *testing.T) {
	s := New(true)

	input := `<img src="https://tracker.example.com/pixel.gif" alt="x">`
	got := s.Sanitize(input)

	if strings.Contains(got, "tracker.example.com") {
		t.Errorf("external image URL survived: %q", got)
	}
}

func TestSanitize_KeepsExternalImagesWhenNotBlocking(t *testing.T) {
	s := New(false)

	input := `<img src="https://example.com/logo.png" alt="logo">`
	got := s.Sanitize(input)

	if !strings.Contains(got, "https://example.com/logo.png") {
		t.Errorf("image URL should survive without blocking: %q", got)
	}
}

func TestSanitize_KeepsFormatting(t *testing.T) {
	s := New(true)

	input := `<h1>Title</h1><p><strong>bold</strong> and <em>italic</em></p><table><tr><td>cell</td></tr></table>`
	got := s.Sanitize(input)

	for _, want := range []string{"<h1>", "<strong>", "<em>", "<td>"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatting element %s was removed: %q", want, got)
		}
	}
}

func TestSanitize_Empty(t *testing.T) {
	s := New(true)
	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}
