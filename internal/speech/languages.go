package speech

import "strings"

type Language struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

var languages = []Language{
	{Name: "English (US)", Code: "en-US"},
	{Name: "Hindi (India)", Code: "hi-IN"},
	{Name: "Spanish", Code: "es-ES"},
	{Name: "French", Code: "fr-FR"},
	{Name: "German", Code: "de-DE"},
	{Name: "Chinese (Mandarin)", Code: "zh-CN"},
	{Name: "Arabic", Code: "ar-SA"},
	{Name: "Bengali", Code: "bn-IN"},
	{Name: "Japanese", Code: "ja-JP"},
	{Name: "Tamil", Code: "ta-IN"},
	{Name: "Telugu", Code: "te-IN"},
	{Name: "Marathi", Code: "mr-IN"},
}

// Languages returns the selectable recognition languages in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LookupLanguage accepts a display name or a BCP-47 code, case-insensitively.
func LookupLanguage(value string) (Language, bool) {
	value = strings.TrimSpace(value)
	for _, language := range languages {
		if strings.EqualFold(language.Code, value) || strings.EqualFold(language.Name, value) {
			return language, true
		}
	}
	return Language{}, false
}

// baseLanguage reduces "en-US" to the ISO-639-1 "en" the transcription API expects.
func baseLanguage(code string) string {
	base, _, _ := strings.Cut(code, "-")
	return strings.ToLower(base)
}
