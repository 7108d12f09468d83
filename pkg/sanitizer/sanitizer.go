package sanitizer

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	MaxNotesLength  = 1000
	MaxReasonLength = 500
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reKeepLettersDigits = regexp.MustCompile(`[^0-9\p{L}]+`)
	reTrimDashes        = regexp.MustCompile(`-+`)
)

// SanitizeFreeText cleans notes and cancellation reasons: control characters
// removed, whitespace collapsed, length capped.
func SanitizeFreeText(input string, limit int) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
		func(s string) string { return truncateRunes(s, limit) },
	}
	return p.Apply(input)
}

func SanitizeNotes(input string) string {
	return SanitizeFreeText(input, MaxNotesLength)
}

func SanitizeReason(input string) string {
	return SanitizeFreeText(input, MaxReasonLength)
}

// SanitizeName tidies brand and model names without changing their case.
func SanitizeName(input string) string {
	return TrimAndNormalize(stripControl(input))
}

// SanitizeCategory turns a category into a lowercase slug so that "Laptops",
// " laptops " and "LAPTOPS" group together.
func SanitizeCategory(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		strings.ToLower,
		func(s string) string { return reKeepLettersDigits.ReplaceAllString(s, "-") },
		func(s string) string { return strings.Trim(reTrimDashes.ReplaceAllString(s, "-"), "-") },
	}
	return p.Apply(input)
}

// SanitizeIdentifier trims ids that arrive in paths, headers and events.
func SanitizeIdentifier(input string) string {
	return strings.TrimSpace(input)
}

// SanitizeURL forces https and lowercases the host. The path and query keep
// their case because blob storage URLs are case-sensitive.
func SanitizeURL(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}
