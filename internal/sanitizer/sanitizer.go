// Package sanitizer cleans HTML email bodies before they are stored or
// handed to a delivery provider.
package sanitizer

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptRe       = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	orphanScriptRe = regexp.MustCompile(`(?i)<script[^>]*/?>`)
	eventHandlerRe = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	imgSrcRe       = regexp.MustCompile(`(?i)src\s*=\s*["']([^"']*)["']`)
	imgTagRe       = regexp.MustCompile(`(?i)<img[^>]*\s+src\s*=\s*(?:"[^"]*"|'[^']*')[^>]*>`)
)

// blockedImagePlaceholder replaces external image sources so tracking
// pixels never load.
const blockedImagePlaceholder = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' width='100' height='100'%3E%3Crect fill='%23f0f0f0' width='100' height='100'/%3E%3Ctext x='50' y='55' text-anchor='middle' fill='%23999' font-size='12'%3EImage Blocked%3C/text%3E%3C/svg%3E"

// HTMLSanitizer cleans untrusted HTML email content
type HTMLSanitizer struct {
	policy      *bluemonday.Policy
	blockImages bool
}

// New creates a sanitizer suited for email bodies. When blockImages is
// true, external image sources are swapped for a placeholder.
func New(blockImages bool) *HTMLSanitizer {
	policy := bluemonday.UGCPolicy()

	policy.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"table", "thead", "tbody", "tfoot", "tr", "th", "td",
		"font", "center",
	)

	policy.AllowAttrs("href").OnElements("a")
	policy.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	policy.AllowAttrs("style", "class").Globally()
	policy.AllowAttrs("align", "valign", "bgcolor", "color", "size", "face").Globally()
	policy.AllowAttrs("colspan", "rowspan", "border", "cellpadding", "cellspacing").OnElements("table", "td", "th")

	policy.AllowDataURIImages()

	return &HTMLSanitizer{
		policy:      policy,
		blockImages: blockImages,
	}
}

// Sanitize strips scripts and event handlers, optionally blocks external
// images, and applies the bluemonday policy
func (s *HTMLSanitizer) Sanitize(html string) string {
	if html == "" {
		return ""
	}

	result := scriptRe.ReplaceAllString(html, "")
	result = orphanScriptRe.ReplaceAllString(result, "")
	result = eventHandlerRe.ReplaceAllString(result, "")

	if s.blockImages {
		result = blockExternalImages(result)
	}

	return s.policy.Sanitize(result)
}

func blockExternalImages(html string) string {
	return imgTagRe.ReplaceAllStringFunc(html, func(tag string) string {
		srcMatch := imgSrcRe.FindStringSubmatch(tag)
		if len(srcMatch) < 2 {
			return tag
		}

		src := strings.TrimSpace(strings.ToLower(srcMatch[1]))

		// Inline and embedded images stay
		if strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "cid:") {
			return tag
		}

		if strings.HasPrefix(src, "//") ||
			strings.HasPrefix(src, "http://") ||
			strings.HasPrefix(src, "https://") ||
			strings.HasPrefix(src, "ftp://") {
			return imgSrcRe.ReplaceAllString(tag, `src="`+blockedImagePlaceholder+`"`)
		}

		return tag
	})
}
