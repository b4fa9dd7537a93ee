// Package profile holds the intake records an analysis runs against: the
// company fact sheet (Unternehmenssteckbrief) and the AI use case. Field
// names mirror the German form fields; prompts and the response parser
// depend on them verbatim.
package profile

import (
	"strings"

	"github.com/google/uuid"
)

// Company is the structured company fact sheet. ID links back to the
// stored record and stays empty for ad-hoc inline payloads.
type Company struct {
	ID string `json:"id,omitempty"`

	Unternehmensname string `json:"unternehmensname"`
	Gruendungsjahr   string `json:"gruendungsjahr"`
	Adresse          string `json:"adresse"`
	Branche          string `json:"branche"`
	Mitarbeiter      string `json:"mitarbeiter"`
	Auszubildende    string `json:"auszubildende"`
	Umsatzklasse     string `json:"umsatzklasse"`

	Kontaktperson string `json:"kontaktperson"`
	Position      string `json:"position"`
	Telefon       string `json:"telefon"`
	Email         string `json:"email"`
	Website       string `json:"website"`

	Hauptleistungen  string          `json:"hauptleistungen"`
	Kundengruppen    map[string]bool `json:"kundengruppen"`
	Geschaeftsradius string          `json:"geschaeftsradius"`
	AuftraegeMonat   string          `json:"auftraege_monat"`

	DigitaleSysteme           map[string]bool `json:"digitale_systeme"`
	Digitalisierungsgrad      string          `json:"digitalisierungsgrad"`
	Herausforderungen         map[string]bool `json:"herausforderungen"`
	Digitalisierungspotenzial string          `json:"digitalisierungspotenzial"`

	KIVerstaendnis string `json:"ki_verstaendnis"`
	KIAnwendungen  string `json:"ki_anwendungen"`
}

// UseCase describes one candidate AI application for a company.
type UseCase struct {
	ID string `json:"id,omitempty"`

	Verantwortlich string `json:"verantwortlich"`
	Bereich        string `json:"bereich"`
	Status         string `json:"status"`

	Beschreibung    string `json:"beschreibung"`
	Problemstellung string `json:"problemstellung"`
	Zielstellung    string `json:"zielstellung"`

	KIFaehigkeiten map[string]bool `json:"ki_faehigkeiten"`
	KIVision       string          `json:"ki_vision"`

	StrategischeVorteile map[string]bool `json:"strategische_vorteile"`
	Geschaeftswert       string          `json:"geschaeftswert"`
	Bewertung            map[string]int  `json:"bewertung"`
	Entwicklungszeit     string          `json:"entwicklungszeit"`
}

// Validate reports every missing required field at once, prefixed the way
// the intake forms label them ("Unternehmen.branche"). Whitespace-only
// values count as missing. A nil result means the record is complete
// enough for analysis.
func (c Company) Validate() []string {
	var missing []string
	if strings.TrimSpace(c.Unternehmensname) == "" {
		missing = append(missing, "Unternehmen.unternehmensname")
	}
	if strings.TrimSpace(c.Branche) == "" {
		missing = append(missing, "Unternehmen.branche")
	}
	return missing
}

// Validate reports missing required use-case fields; see Company.Validate.
func (u UseCase) Validate() []string {
	var missing []string
	if strings.TrimSpace(u.Beschreibung) == "" {
		missing = append(missing, "UseCase.beschreibung")
	}
	return missing
}

// Title derives a display title from the description, truncated to max
// runes with an ellipsis. Descriptions are free text from forms, so the
// cut must not split a multi-byte character.
func (u UseCase) Title(max int) string {
	return Truncate(u.Beschreibung, max)
}

// Truncate shortens s to max runes, appending "..." when anything was cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.New().String()
}
