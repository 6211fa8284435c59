package widget

import "time"

// BannerConfig is the display configuration of a consent banner.
type BannerConfig struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	AcceptButtonText    string `json:"acceptButtonText"`
	RejectButtonText    string `json:"rejectButtonText"`
	CustomizeButtonText string `json:"customizeButtonText"`
	Position            string `json:"position"`
	Theme               string `json:"theme"`
	PrimaryColor        string `json:"primaryColor"`
	BackgroundColor     string `json:"backgroundColor"`
	TextColor           string `json:"textColor"`
}

// Purpose is one consent purpose shown on the banner.
type Purpose struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Category    string `json:"category"`
}

// PurposeText is a translated purpose label.
type PurposeText struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Translation overrides banner text for one language.
type Translation struct {
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	AcceptButtonText    string                 `json:"acceptButtonText"`
	RejectButtonText    string                 `json:"rejectButtonText"`
	CustomizeButtonText string                 `json:"customizeButtonText"`
	Purposes            map[string]PurposeText `json:"purposes,omitempty"`
}

// Snapshot is the template as served to the widget for one language and
// platform. It is fetched once per load and never mutated afterwards.
type Snapshot struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Config       BannerConfig `json:"config"`
	Purposes     []Purpose    `json:"purposes"`
	Translations *Translation `json:"translations"`
	Language     string       `json:"language"`
	Platform     string       `json:"platform"`
	CreatedAt    *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time   `json:"updatedAt,omitempty"`
}

// Fallback reports whether the snapshot is the built-in default.
func (s Snapshot) Fallback() bool {
	return s.CreatedAt == nil && s.Name == fallbackName
}

// RequiredPurposeIDs lists the purposes that can never be disabled.
func (s Snapshot) RequiredPurposeIDs() []string {
	out := make([]string, 0, len(s.Purposes))
	for _, p := range s.Purposes {
		if p.Required {
			out = append(out, p.ID)
		}
	}
	return out
}

const fallbackName = "Privacy Consent"

// FallbackTemplate is served when the template store cannot be reached.
func FallbackTemplate(templateID, language, platform string) Snapshot {
	if language == "" {
		language = DefaultLanguage
	}
	if platform == "" {
		platform = DefaultPlatform
	}
	return Snapshot{
		ID:   templateID,
		Name: fallbackName,
		Config: BannerConfig{
			Title:               "Privacy & Cookie Consent",
			Description:         "We use cookies to enhance your experience and analyze our traffic.",
			AcceptButtonText:    "Accept All",
			RejectButtonText:    "Reject All",
			CustomizeButtonText: "Customize",
			Position:            "bottom",
			Theme:               "light",
			PrimaryColor:        "#3b82f6",
			BackgroundColor:     "#ffffff",
			TextColor:           "#374151",
		},
		Purposes: []Purpose{{
			ID:          "essential",
			Name:        "Essential Cookies",
			Description: "Required for basic website functionality",
			Required:    true,
			Category:    "essential",
		}},
		Language: language,
		Platform: platform,
	}
}

// Language is an entry of the loader's language catalog.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"nativeName"`
}

var supportedLanguages = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "mr", Name: "Marathi", NativeName: "मराठी"},
	{Code: "ta", Name: "Tamil", NativeName: "தமிழ்"},
	{Code: "gu", Name: "Gujarati", NativeName: "ગુજરાતી"},
	{Code: "kn", Name: "Kannada", NativeName: "ಕನ್ನಡ"},
	{Code: "ml", Name: "Malayalam", NativeName: "മലയാളം"},
	{Code: "or", Name: "Odia", NativeName: "ଓଡ଼ିଆ"},
	{Code: "pa", Name: "Punjabi", NativeName: "ਪੰਜਾਬੀ"},
	{Code: "as", Name: "Assamese", NativeName: "অসমীয়া"},
	{Code: "mai", Name: "Maithili", NativeName: "मैथिली"},
	{Code: "bh", Name: "Bhojpuri", NativeName: "भोजपुरी"},
	{Code: "ks", Name: "Kashmiri", NativeName: "कश्मीरी"},
	{Code: "ne", Name: "Nepali", NativeName: "नेपाली"},
	{Code: "sd", Name: "Sindhi", NativeName: "سنڌي"},
	{Code: "ur", Name: "Urdu", NativeName: "اردو"},
	{Code: "kok", Name: "Konkani", NativeName: "कोंकणी"},
	{Code: "mni", Name: "Manipuri", NativeName: "মৈতৈলোন্"},
	{Code: "sat", Name: "Santali", NativeName: "ᱥᱟᱱᱛᱟᱲᱤ"},
	{Code: "doi", Name: "Dogri", NativeName: "डोगरी"},
}

// SupportedLanguages is the catalog exposed by the loader's public API.
func SupportedLanguages() []Language {
	out := make([]Language, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// BannerLanguages are the choices offered by the banner's language picker.
var BannerLanguages = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "hi", Name: "Hindi", NativeName: "हिंदी"},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
	{Code: "fr", Name: "French", NativeName: "Français"},
}

// Label is the "English - Native" form shown by host pages.
func (l Language) Label() string {
	if l.NativeName == "" || l.NativeName == l.Name {
		return l.Name
	}
	return l.Name + " - " + l.NativeName
}
