package validation

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key; a printer falls back to
// the key when the locale has no translation.
const (
	msgRequired    = "This field is required"
	msgMinLength   = "Must be at least %s characters"
	msgMaxLength   = "Must be at most %s characters"
	msgLength      = "Must be exactly %s characters"
	msgMinValue    = "Must be at least %s"
	msgMaxValue    = "Must be at most %s"
	msgMinItems    = "Select at least %s items"
	msgMaxItems    = "Select at most %s items"
	msgEmail       = "Must be a valid email address"
	msgURL         = "Must be a valid URL"
	msgNumeric     = "Must be a number"
	msgInteger     = "Must be a whole number"
	msgAlpha       = "Must contain only letters"
	msgAlphaNum    = "Must contain only letters and digits"
	msgPattern     = "Has an invalid format"
	msgIn          = "Must be one of: %s"
	msgInvalid     = "Is invalid"
	msgUnavailable = "Could not be validated"
)

var (
	catalogOnce sync.Once
	messages    *catalog.Builder
)

// Catalog returns the shared message catalog. Hosts may add translations with
// SetString before creating forms.
func Catalog() *catalog.Builder {
	catalogOnce.Do(func() {
		messages = catalog.NewBuilder(catalog.Fallback(language.English))
		german := map[string]string{
			msgRequired:    "Dieses Feld ist erforderlich",
			msgMinLength:   "Muss mindestens %s Zeichen lang sein",
			msgMaxLength:   "Darf höchstens %s Zeichen lang sein",
			msgLength:      "Muss genau %s Zeichen lang sein",
			msgMinValue:    "Muss mindestens %s sein",
			msgMaxValue:    "Darf höchstens %s sein",
			msgMinItems:    "Mindestens %s Einträge auswählen",
			msgMaxItems:    "Höchstens %s Einträge auswählen",
			msgEmail:       "Muss eine gültige E-Mail-Adresse sein",
			msgURL:         "Muss eine gültige URL sein",
			msgNumeric:     "Muss eine Zahl sein",
			msgInteger:     "Muss eine ganze Zahl sein",
			msgAlpha:       "Darf nur Buchstaben enthalten",
			msgAlphaNum:    "Darf nur Buchstaben und Ziffern enthalten",
			msgPattern:     "Hat ein ungültiges Format",
			msgIn:          "Muss einer der folgenden Werte sein: %s",
			msgInvalid:     "Ist ungültig",
			msgUnavailable: "Konnte nicht geprüft werden",
		}
		for key, text := range german {
			_ = messages.SetString(language.German, key, text)
		}
	})
	return messages
}

func localize(tag language.Tag, key string, args ...any) string {
	if tag == language.Und {
		tag = language.English
	}
	return message.NewPrinter(tag, message.Catalog(Catalog())).Sprintf(key, args...)
}
