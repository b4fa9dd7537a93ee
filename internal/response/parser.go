// Package response turns unreliable LLM output into scored, structured
// analysis data. Local models routinely wrap JSON in prose or markdown,
// drop quotes, or ignore the schema entirely, so parsing runs through a
// chain of strategies from strict to forgiving and every result carries a
// confidence score instead of a hard yes/no.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrEmptyResponse reports a blank model response. This is the only hard
// parse failure; everything else degrades to a low-confidence result.
var ErrEmptyResponse = errors.New("empty model response")

// Strategy names the parse path that produced a result.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyExtracted Strategy = "extracted"
	StrategyEmbedded  Strategy = "embedded"
	StrategyHeuristic Strategy = "heuristic"
	StrategyFallback  Strategy = "fallback"
)

// Result is a parsed model response. Valid means the data met the format's
// schema with confidence above 0.5; callers deciding whether to trust an
// analysis should check Valid or compare Confidence against their own
// threshold rather than assume the data is complete.
type Result struct {
	Data       map[string]any `json:"data"`
	Format     Format         `json:"format"`
	Strategy   Strategy       `json:"strategy"`
	Confidence float64        `json:"confidence"`
	Valid      bool           `json:"valid"`
	Errors     []string       `json:"errors,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Raw        string         `json:"-"`
}

// Parse runs the strategy chain over a raw model response:
//
//  1. direct: the whole response is valid JSON
//  2. extracted: JSON inside fenced code blocks or the widest brace span
//  3. embedded: every balanced {...} object in mixed prose, best one wins
//  4. heuristic: plain-text mining, confidence capped low
//
// The first schema-valid result is returned. If no strategy validates, the
// highest-confidence partial result with non-empty data wins, and as a
// last resort a fallback result wraps the raw text so the caller never
// loses the model output. Only an empty response returns an error.
func Parse(raw string, format Format) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyResponse
	}
	if format == "" || format == FormatAuto {
		format = DetectFormat(raw)
	}

	slog.Debug("parsing model response", "length", len(raw), "format", string(format))

	attempts := []struct {
		strategy Strategy
		fn       func(string, Format) (*Result, error)
	}{
		{StrategyDirect, parseDirect},
		{StrategyExtracted, parseExtracted},
		{StrategyEmbedded, parseEmbedded},
		{StrategyHeuristic, parseHeuristic},
	}

	var (
		best      *Result
		collected []string
	)
	for _, a := range attempts {
		res, err := a.fn(raw, format)
		if err != nil {
			collected = append(collected, fmt.Sprintf("%s: %v", a.strategy, err))
			continue
		}
		if res.Valid {
			slog.Debug("response parsed", "strategy", string(a.strategy), "confidence", res.Confidence)
			return res, nil
		}
		collected = append(collected, res.Errors...)
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}

	if best != nil && len(best.Data) > 0 {
		slog.Warn("partial parse only", "strategy", string(best.Strategy), "confidence", best.Confidence)
		return best, nil
	}

	slog.Warn("all parse strategies failed", "format", string(format), "errors", len(collected))
	return fallbackResult(raw, format, collected), nil
}

// parseDirect handles the happy path: the trimmed response is one JSON
// document. No repair pass here; a response that needs repair is by
// definition not clean JSON.
func parseDirect(raw string, format Format) (*Result, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return nil, fmt.Errorf("not a clean JSON document: %w", err)
	}
	return resultFor(v, format, StrategyDirect, raw), nil
}

// parseExtracted pulls JSON candidates out of markdown: fenced code blocks
// first, then the widest brace and bracket spans. The first candidate that
// parses and scores above the validity threshold wins.
func parseExtracted(raw string, format Format) (*Result, error) {
	for _, cand := range jsonCandidates(raw) {
		v, ok := tryJSON(cand)
		if !ok {
			continue
		}
		res := resultFor(v, format, StrategyExtracted, raw)
		if res.Valid || res.Confidence > 0.5 {
			return res, nil
		}
	}
	return nil, errors.New("no valid JSON block found")
}

// parseEmbedded scans mixed prose for every balanced top-level object and
// keeps the best-scoring one, even when it falls short of validity.
func parseEmbedded(raw string, format Format) (*Result, error) {
	spans := objectSpans(raw)
	if len(spans) == 0 {
		return nil, errors.New("no embedded JSON objects found")
	}

	var best *Result
	for _, span := range spans {
		v, ok := tryJSON(span)
		if !ok {
			continue
		}
		res := resultFor(v, format, StrategyEmbedded, raw)
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}
	if best == nil {
		return nil, errors.New("embedded JSON objects did not parse")
	}
	return best, nil
}

func resultFor(v any, format Format, strategy Strategy, raw string) *Result {
	data, confidence, errs, warnings := evaluate(v, format)
	return &Result{
		Data:       data,
		Format:     format,
		Strategy:   strategy,
		Confidence: confidence,
		Valid:      confidence > 0.5 && len(errs) == 0,
		Errors:     errs,
		Warnings:   warnings,
		Raw:        raw,
	}
}

// tryJSON parses a candidate verbatim first. The repair pass only runs
// after the verbatim parse fails, so well-formed JSON is never mangled by
// the repair regexes.
func tryJSON(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, true
	}
	if err := json.Unmarshal([]byte(repairJSON(s)), &v); err == nil {
		return v, true
	}
	return nil, false
}

var (
	fenceOpenRe   = regexp.MustCompile("```json\\s*")
	fenceCloseRe  = regexp.MustCompile("```\\s*$")
	bareKeyRe     = regexp.MustCompile(`(\w+):`)
	bareValueRe   = regexp.MustCompile(`:\s*([^"\[\{\d\-][^,\}\]]*)`)
	trailingObjRe = regexp.MustCompile(`,\s*\}`)
	trailingArrRe = regexp.MustCompile(`,\s*\]`)
)

// repairJSON fixes the damage local models most often do to JSON: markdown
// fences, unquoted keys, unquoted string values, trailing commas. The
// value rule is knowingly crude (it quotes bare booleans too) which is why
// repair only ever runs on candidates that already failed to parse.
func repairJSON(s string) string {
	out := strings.TrimSpace(s)
	out = fenceOpenRe.ReplaceAllString(out, "")
	out = fenceCloseRe.ReplaceAllString(out, "")
	out = bareKeyRe.ReplaceAllString(out, `"$1":`)
	out = bareValueRe.ReplaceAllString(out, `: "$1"`)
	out = trailingObjRe.ReplaceAllString(out, "}")
	out = trailingArrRe.ReplaceAllString(out, "]")
	return strings.TrimSpace(out)
}

func jsonCandidates(raw string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		candidates = append(candidates, s)
	}

	for _, block := range fencedBlocks(raw) {
		add(block)
	}
	add(widestSpan(raw, '{', '}'))
	add(widestSpan(raw, '[', ']'))

	return candidates
}

// fencedBlocks walks the markdown AST and collects fenced code block
// bodies: json-tagged blocks first, then untagged blocks that look like
// JSON.
func fencedBlocks(raw string) []string {
	src := []byte(raw)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var tagged, untagged []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		body := strings.TrimSpace(sb.String())
		if body == "" {
			return ast.WalkContinue, nil
		}

		if strings.EqualFold(string(fence.Language(src)), "json") {
			tagged = append(tagged, body)
		} else if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			untagged = append(untagged, body)
		}
		return ast.WalkContinue, nil
	})

	return append(tagged, untagged...)
}

// widestSpan returns the substring from the first open delimiter to the
// last close delimiter, or "" when no such span exists.
func widestSpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// objectSpans collects every balanced top-level {...} span by brace
// counting. Braces inside JSON strings are miscounted; such spans simply
// fail to parse and are skipped by the caller.
func objectSpans(s string) []string {
	var spans []string
	depth := 0
	start := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// fallbackResult wraps the raw text when every strategy came up empty, so
// the original model output survives for manual review.
func fallbackResult(raw string, format Format, errs []string) *Result {
	parseErrors := make([]any, len(errs))
	for i, e := range errs {
		parseErrors[i] = e
	}
	data := map[string]any{
		"zusammenfassung": "Parsing fehlgeschlagen - Originaltext verfügbar",
		"raw_response":    raw,
		"parsing_errors":  parseErrors,
		"naechste_schritte": []any{
			"Response manuell prüfen",
			"Prompt-Template überarbeiten",
			"KI-Modell-Parameter anpassen",
		},
	}
	return &Result{
		Data:       data,
		Format:     format,
		Strategy:   StrategyFallback,
		Confidence: 0.1,
		Errors:     errs,
		Raw:        raw,
	}
}
