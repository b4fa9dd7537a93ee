package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/kian/internal/lmstudio"
	"github.com/kalambet/kian/internal/profile"
)

// ValidationError reports the intake fields a prompt build was missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Fehlende Pflichtfelder: " + strings.Join(e.Missing, ", ")
}

// Build renders the named template against a company profile and use
// case into the system and user messages for the model. extra entries
// add to or override the standard template variables. Incomplete intake
// data fails with a *ValidationError listing every missing field.
func (r *Registry) Build(name string, company profile.Company, uc profile.UseCase, extra map[string]string) ([]lmstudio.Message, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	missing := company.Validate()
	missing = append(missing, uc.Validate()...)
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	vars := map[string]string{
		"company_profile":      renderCompany(company),
		"use_case":             renderUseCase(uc),
		"company_name":         orUnknown(company.Unternehmensname),
		"company_size":         orUnknown(company.Mitarbeiter),
		"company_branch":       orUnknown(company.Branche),
		"use_case_title":       uc.Title(100),
		"use_case_description": uc.Beschreibung,
	}
	for k, v := range extra {
		vars[k] = v
	}

	// Only the user part is a template; the system prompt goes out
	// verbatim so its JSON format examples survive untouched.
	return []lmstudio.Message{
		{Role: "system", Content: t.SystemPrompt},
		{Role: "user", Content: renderTemplate(t.UserTemplate, vars)},
	}, nil
}

// renderTemplate substitutes {name} placeholders. Unknown placeholders
// render as empty strings rather than failing the whole prompt.
func renderTemplate(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
}

// renderCompany formats the company fact sheet as the labeled markdown
// block the analysis prompts embed.
func renderCompany(c profile.Company) string {
	sections := []string{fmt.Sprintf(
		"**Unternehmen:** %s\n**Branche:** %s\n**Mitarbeiter:** %s\n**Umsatzklasse:** %s\n**Geschäftsradius:** %s",
		orNA(c.Unternehmensname), orNA(c.Branche), orNA(c.Mitarbeiter), orNA(c.Umsatzklasse), orNA(c.Geschaeftsradius),
	)}

	if c.Hauptleistungen != "" {
		sections = append(sections, "**Hauptleistungen:**\n"+c.Hauptleistungen)
	}
	if items := bulletList(c.DigitaleSysteme); items != "" {
		sections = append(sections, "**Digitale Systeme:**\n"+items)
	}
	sections = append(sections, "**Digitalisierungsgrad:** "+orNA(c.Digitalisierungsgrad))
	if items := bulletList(c.Herausforderungen); items != "" {
		sections = append(sections, "**Aktuelle Herausforderungen:**\n"+items)
	}
	sections = append(sections, "**KI-Verständnis:** "+orNA(c.KIVerstaendnis))
	if c.KIAnwendungen != "" {
		sections = append(sections, "**Bereits genutzte KI:**\n"+c.KIAnwendungen)
	}

	return strings.Join(sections, "\n\n")
}

// renderUseCase formats the use case as the labeled markdown block the
// analysis prompts embed.
func renderUseCase(uc profile.UseCase) string {
	sections := []string{fmt.Sprintf(
		"**Verantwortlich:** %s\n**Bereich:** %s\n**Status:** %s",
		orNA(uc.Verantwortlich), orNA(uc.Bereich), orNA(uc.Status),
	)}

	if uc.Beschreibung != "" {
		sections = append(sections, "**Beschreibung:**\n"+uc.Beschreibung)
	}
	if uc.Problemstellung != "" {
		sections = append(sections, "**Problemstellung:**\n"+uc.Problemstellung)
	}
	if uc.Zielstellung != "" {
		sections = append(sections, "**Zielstellung:**\n"+uc.Zielstellung)
	}
	if items := bulletList(uc.KIFaehigkeiten); items != "" {
		sections = append(sections, "**Benötigte KI-Fähigkeiten:**\n"+items)
	}
	if items := bulletList(uc.StrategischeVorteile); items != "" {
		sections = append(sections, "**Erwartete strategische Vorteile:**\n"+items)
	}
	if len(uc.Bewertung) > 0 {
		sections = append(sections, "**Technische Bewertung:**\n"+ratingList(uc.Bewertung))
	}
	if uc.Entwicklungszeit != "" {
		sections = append(sections, "**Geschätzte Entwicklungszeit:** "+uc.Entwicklungszeit)
	}

	return strings.Join(sections, "\n\n")
}

// bulletList renders the checked entries of a checkbox group as sorted
// "- item" lines. Empty when nothing is checked.
func bulletList(items map[string]bool) string {
	var keys []string
	for k, checked := range items {
		if checked {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	for i, k := range keys {
		keys[i] = "- " + k
	}
	return strings.Join(keys, "\n")
}

// ratingList renders a 1-5 rating map as sorted "- criterion: n/5" lines.
func ratingList(ratings map[string]int) string {
	keys := make([]string, 0, len(ratings))
	for k := range ratings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("- %s: %d/5", k, ratings[k])
	}
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unbekannt"
	}
	return s
}
