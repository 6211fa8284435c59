// Package widget implements the consent widget protocol: the script loader
// session that runs on the host page and the banner that runs in its frame.
package widget

import (
	"errors"
	"strings"
)

const (
	// Version is reported through the host-visible API.
	Version = "1.0.0"

	// ScriptPath is where the loader is served relative to the deployment origin.
	ScriptPath = "/sdk/consent-manager.js"

	DefaultPlatform = "web"
	DefaultLanguage = "en"
)

var (
	ErrScriptNotFound    = errors.New("consent manager script tag not found")
	ErrMissingTemplateID = errors.New("data-template-id is required")
	ErrMissingUserID     = errors.New("data-user-id is required")
	ErrPIIUserID         = errors.New("user reference looks like personal data")
	ErrInsecurePage      = errors.New("https is required outside localhost")
)

// Config is read from the loader's script tag.
type Config struct {
	TemplateID      string `json:"templateId"`
	UserReferenceID string `json:"userId"`
	Platform        string `json:"platform"`
	Language        string `json:"language"`
}

// ScriptTag is the part of a <script> element the loader inspects. Data holds
// dataset keys in camelCase form (templateId, userId, ...).
type ScriptTag struct {
	Src  string
	Data map[string]string
}

// Document is the host page as seen by the loader.
type Document interface {
	// CurrentScript returns the executing script, if the page exposes it.
	CurrentScript() (ScriptTag, bool)
	Scripts() []ScriptTag
	// Location returns the page protocol ("https:") and hostname.
	Location() (protocol, hostname string)
}

// LookupSource records which rule located the script tag.
type LookupSource int

const (
	SourceNotFound LookupSource = iota
	SourceCurrentScript
	SourceSrcMatch
	SourceDataAttribute
)

func (s LookupSource) String() string {
	switch s {
	case SourceCurrentScript:
		return "current-script"
	case SourceSrcMatch:
		return "src-match"
	case SourceDataAttribute:
		return "data-attribute"
	default:
		return "not-found"
	}
}

// Lookup is the result of LocateScript. Callers must check Found.
type Lookup struct {
	Tag    ScriptTag
	Source LookupSource
}

func (l Lookup) Found() bool {
	return l.Source != SourceNotFound
}

// LocateScript finds the loader's own tag: the current script first, then the
// first tag whose src contains scriptPath, then the first tag carrying a
// templateId data attribute.
func LocateScript(doc Document, scriptPath string) Lookup {
	if doc == nil {
		return Lookup{}
	}
	if tag, ok := doc.CurrentScript(); ok {
		return Lookup{Tag: tag, Source: SourceCurrentScript}
	}
	scripts := doc.Scripts()
	if scriptPath != "" {
		for _, tag := range scripts {
			if strings.Contains(tag.Src, scriptPath) {
				return Lookup{Tag: tag, Source: SourceSrcMatch}
			}
		}
	}
	for _, tag := range scripts {
		if strings.TrimSpace(tag.Data["templateId"]) != "" {
			return Lookup{Tag: tag, Source: SourceDataAttribute}
		}
	}
	return Lookup{}
}

// ParseConfig reads Config from the tag's data attributes and applies defaults.
func ParseConfig(tag ScriptTag) (Config, error) {
	cfg := Config{
		TemplateID:      strings.TrimSpace(tag.Data["templateId"]),
		UserReferenceID: strings.TrimSpace(tag.Data["userId"]),
		Platform:        strings.TrimSpace(tag.Data["platform"]),
		Language:        strings.TrimSpace(tag.Data["language"]),
	}
	if cfg.Platform == "" {
		cfg.Platform = DefaultPlatform
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.TemplateID == "" {
		return cfg, ErrMissingTemplateID
	}
	if cfg.UserReferenceID == "" {
		return cfg, ErrMissingUserID
	}
	return cfg, nil
}
