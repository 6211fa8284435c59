// Package validate collects field-level problems found by domain services
// so the HTTP layer can report them all at once.
package validate

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
)

type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error carries every issue found in one payload.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

type Collector struct {
	issues []Issue
}

func (c *Collector) Add(field, reason string) {
	c.issues = append(c.issues, Issue{Field: field, Reason: reason})
}

func (c *Collector) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		c.Add(field, "is required")
	}
}

func (c *Collector) MaxLen(field, value string, max int) {
	if len(value) > max {
		c.Add(field, "is too long")
	}
}

func (c *Collector) OneOf(field, value string, allowed ...string) {
	for _, candidate := range allowed {
		if value == candidate {
			return
		}
	}
	c.Add(field, "must be one of "+strings.Join(allowed, ", "))
}

var (
	hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	slug     = regexp.MustCompile(`^[a-z0-9_-]+$`)
	langCode = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
)

func (c *Collector) HexColor(field, value string) {
	if !hexColor.MatchString(value) {
		c.Add(field, "must be a #RRGGBB colour")
	}
}

func (c *Collector) Slug(field, value string) {
	if !slug.MatchString(value) {
		c.Add(field, "must contain only lowercase letters, numbers, hyphens and underscores")
	}
}

func (c *Collector) Email(field, value string) {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		c.Add(field, "must be an email address")
	}
}

func (c *Collector) Language(field, value string) {
	if !langCode.MatchString(value) {
		c.Add(field, "must be a language code such as en, mai or en-US")
	}
}

// Err returns nil when nothing was collected.
func (c *Collector) Err() error {
	if len(c.issues) == 0 {
		return nil
	}
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return &Error{Issues: out}
}
