// Package prompt holds the analysis prompt templates and renders them
// against a company profile and use case into chat messages.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/kian/internal/response"
)

// Template is one prompt recipe: a fixed system prompt, a user template
// with {placeholder} variables, and the sampling parameters plus output
// format the model is expected to honor.
type Template struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	SystemPrompt string          `json:"system_prompt"`
	UserTemplate string          `json:"user_template"`
	Format       response.Format `json:"format"`
	Temperature  float64         `json:"temperature"`
	MaxTokens    int             `json:"max_tokens"`
}

// Variables returns the placeholder names of the template's user part,
// in order of first appearance.
func (t Template) Variables() []string {
	var (
		names []string
		seen  = make(map[string]bool)
	)
	for _, m := range placeholderRe.FindAllStringSubmatch(t.UserTemplate, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Errors returned by Registry lookups and registration.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already registered")
)

// Registry holds the available templates. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry returns a registry preloaded with the built-in analysis
// templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template, 4)}
	for _, t := range builtins() {
		r.templates[t.Key] = t
	}
	return r
}

// Get returns the template registered under key.
func (r *Registry) Get(key string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[key]
	if !ok {
		return Template{}, fmt.Errorf("%q: %w", key, ErrTemplateNotFound)
	}
	return t, nil
}

// Register adds a custom template. Empty sampling parameters fall back
// to moderate defaults; the format string is normalized. Registering an
// existing key fails so the built-ins cannot be overwritten.
func (r *Registry) Register(t Template) error {
	if strings.TrimSpace(t.Key) == "" {
		return errors.New("template key is required")
	}
	if strings.TrimSpace(t.SystemPrompt) == "" {
		return errors.New("system prompt is required")
	}
	if strings.TrimSpace(t.UserTemplate) == "" {
		return errors.New("user template is required")
	}
	if t.Name == "" {
		t.Name = t.Key
	}
	t.Format = response.ParseFormat(string(t.Format))
	if t.Temperature <= 0 {
		t.Temperature = 0.7
	}
	if t.MaxTokens <= 0 {
		t.MaxTokens = 2000
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[t.Key]; ok {
		return fmt.Errorf("%q: %w", t.Key, ErrTemplateExists)
	}
	r.templates[t.Key] = t
	return nil
}

// List returns all templates sorted by key.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// Keys returns the registered template keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.templates))
	for k := range r.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// builtins returns the four standard analysis templates. The prompts are
// German because the intake forms and the downstream field vocabulary
// (machbarkeit, handlungsschritte, ...) are.
func builtins() []Template {
	return []Template{
		{
			Key:  "use_case_analysis",
			Name: "KI Use Case Analyse",
			SystemPrompt: `Du bist ein erfahrener Berater für KI-Implementierung im Handwerk und in kleinen bis mittelständischen Unternehmen.

Deine Aufgabe ist es, basierend auf einem Unternehmenssteckbrief und einem konkreten KI Use Case eine detaillierte, praxisorientierte Handlungsempfehlung zu erstellen.

Analysiere die Informationen gründlich und erstelle eine strukturierte Antwort mit konkreten, umsetzbaren Empfehlungen.

Antworte IMMER im folgenden JSON-Format:
{
    "zusammenfassung": "Kurze Einschätzung der Situation",
    "handlungsschritte": [
        {
            "prioritaet": "hoch/mittel/niedrig",
            "phase": "Sofort/30 Tage/60 Tage/90+ Tage",
            "titel": "Kurzer Titel",
            "beschreibung": "Detaillierte Beschreibung",
            "aufwand": "gering/mittel/hoch",
            "kosten": "Geschätzte Kosten oder Kostenbereich"
        }
    ],
    "technische_loesungen": [
        {
            "kategorie": "Software/Hardware/Service/Schulung",
            "titel": "Name der Lösung",
            "beschreibung": "Was ist das und wie hilft es?",
            "anbieter": "Mögliche Anbieter/Alternativen",
            "kosten": "Geschätzte Kosten",
            "implementierung": "Wie lange dauert die Einführung?"
        }
    ],
    "risiken": [
        {
            "typ": "technisch/organisatorisch/finanziell",
            "beschreibung": "Was könnte schiefgehen?",
            "wahrscheinlichkeit": "gering/mittel/hoch",
            "auswirkung": "gering/mittel/hoch",
            "massnahmen": "Wie kann man das Risiko minimieren?"
        }
    ],
    "chancen": [
        {
            "bereich": "Effizienz/Qualität/Umsatz/Kosten/Wettbewerb",
            "beschreibung": "Welche Vorteile sind möglich?",
            "potenzial": "gering/mittel/hoch",
            "zeitrahmen": "Wann sind Ergebnisse sichtbar?"
        }
    ],
    "erfolgsmessung": [
        {
            "kpi": "Name der Kennzahl",
            "beschreibung": "Was wird gemessen?",
            "zielwert": "Angestrebter Wert",
            "messintervall": "Wie oft messen?"
        }
    ],
    "naechste_schritte": [
        "Konkrete nächste Schritte in chronologischer Reihenfolge"
    ]
}

Wichtig:
- Sei konkret und praxisnah
- Berücksichtige die Größe und Branche des Unternehmens
- Denke an typische Herausforderungen im Handwerk
- Gib realistische Kosten- und Zeitschätzungen
- Antworte ausschließlich in dem geforderten JSON-Format`,
			UserTemplate: `Bitte analysiere folgenden KI Use Case für das Unternehmen:

## UNTERNEHMENSSTECKBRIEF:
{company_profile}

## KI USE CASE:
{use_case}

Erstelle eine detaillierte Handlungsempfehlung zur Umsetzung dieses Use Cases für dieses spezifische Unternehmen.`,
			Format:      response.FormatStructured,
			Temperature: 0.7,
			MaxTokens:   3000,
		},
		{
			Key:  "quick_feasibility",
			Name: "Schnelle Machbarkeitsanalyse",
			SystemPrompt: `Du bist ein KI-Experte und bewertest schnell die Machbarkeit von KI Use Cases.

Antworte im JSON-Format:
{
    "machbarkeit": "sehr gut/gut/mittel/schwierig/unrealistisch",
    "begruendung": "Kurze Begründung",
    "aufwand": "gering/mittel/hoch/sehr hoch",
    "kosten": "< 1000€ / 1000-5000€ / 5000-20000€ / > 20000€",
    "zeitrahmen": "< 1 Monat / 1-3 Monate / 3-6 Monate / > 6 Monate",
    "haupthindernisse": ["Liste der größten Hürden"],
    "empfehlung": "go/no-go/überdenken"
}`,
			UserTemplate: `Bewerte die Machbarkeit:

Unternehmen: {company_name} ({company_size} Mitarbeiter, {company_branch})
Use Case: {use_case_title}
Beschreibung: {use_case_description}`,
			Format:      response.FormatQuick,
			Temperature: 0.3,
			MaxTokens:   500,
		},
		{
			Key:  "roi_analysis",
			Name: "ROI und Business Case Analyse",
			SystemPrompt: `Du bist ein Business-Analyst mit Fokus auf KI-ROI im Mittelstand.

Antworte im JSON-Format:
{
    "investition": {
        "einmalig": "Einmalige Kosten in EUR",
        "laufend_monatlich": "Monatliche Kosten in EUR",
        "gesamt_jahr1": "Gesamtkosten Jahr 1"
    },
    "einsparungen": {
        "zeit_stunden_monat": "Gesparte Stunden pro Monat",
        "kosten_monatlich": "Kosteneinsparung pro Monat",
        "qualitaet": "Qualitätsverbesserungen"
    },
    "roi": {
        "breakeven_monate": "Monate bis Break-Even",
        "roi_jahr1": "ROI in % nach Jahr 1",
        "roi_jahr3": "ROI in % nach Jahr 3"
    },
    "risikofaktoren": ["Faktoren die ROI beeinflussen"],
    "empfehlung": "Investition empfohlen ja/nein"
}`,
			UserTemplate: `Erstelle eine ROI-Analyse für:

{company_profile}

{use_case}

Berücksichtige typische Stundenlöhne im Handwerk und realistische Einsparpotenziale.`,
			Format:      response.FormatROI,
			Temperature: 0.3,
			MaxTokens:   1000,
		},
		{
			Key:  "implementation_plan",
			Name: "Detaillierter Implementierungsplan",
			SystemPrompt: `Du bist ein Projektmanager für KI-Implementierungen.

Erstelle einen detaillierten Projektplan im JSON-Format:
{
    "projektphasen": [
        {
            "phase": "Name der Phase",
            "dauer_wochen": "Anzahl Wochen",
            "ziele": ["Ziele dieser Phase"],
            "aufgaben": [
                {
                    "aufgabe": "Aufgabenbeschreibung",
                    "verantwortlich": "Wer macht es?",
                    "dauer_tage": "Dauer in Tagen",
                    "abhaengigkeiten": ["Wovon hängt es ab?"]
                }
            ],
            "meilensteine": ["Wichtige Meilensteine"],
            "risiken": ["Phasen-spezifische Risiken"]
        }
    ],
    "ressourcen": {
        "personal_intern": ["Benötigte interne Rollen"],
        "personal_extern": ["Externe Berater/Dienstleister"],
        "technologie": ["Hardware/Software Requirements"],
        "budget_gesamt": "Gesamtbudget",
        "budget_phasen": ["Budget pro Phase"]
    },
    "timeline": {
        "start": "Empfohlener Starttermin",
        "meilensteine": [
            {
                "datum": "YYYY-MM-DD",
                "ereignis": "Was passiert?"
            }
        ],
        "go_live": "Geplanter Go-Live Termin"
    },
    "erfolgskriterien": [
        {
            "kriterium": "Messbares Erfolgskriterium",
            "zielwert": "Angestrebter Wert",
            "messzeit": "Wann wird gemessen?"
        }
    ]
}`,
			UserTemplate: `Erstelle einen detaillierten Implementierungsplan:

{company_profile}

{use_case}

Plane realistisch und berücksichtige typische Herausforderungen in KMU.`,
			Format:      response.FormatPlan,
			Temperature: 0.5,
			MaxTokens:   2500,
		},
	}
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
