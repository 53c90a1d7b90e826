package parsers

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// Answers produced by ParseYesOrNo.
const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

var yesPatterns = []string{
	"yes", "y", "true", "t", "1", "+", "ok", "okay", "affirmative", "agree",
	"correct", "right", "confirmed", "positive", "sure", "absolutely",
	"certainly", "definitely", "yep", "yeah", "yup", "aye", "roger",
	"approved", "accept", "allowed",
}

var noPatterns = []string{
	"no", "n", "false", "f", "0", "-", "cancel", "deny", "refuse", "reject",
	"disagree", "incorrect", "wrong", "negative", "never", "nope", "nah",
	"veto", "forbidden", "prohibited", "banned", "rejected", "declined",
	"disallowed",
}

var (
	yesSet = toSet(yesPatterns)
	noSet  = toSet(noPatterns)
)

// ParseYesOrNo classifies the text as "yes" or "no". Exact synonyms win;
// otherwise a synonym longer than one character may prefix the text when it
// is followed by a non-letter ("Yeah!", "no, thanks"). Yes synonyms are
// checked first. When nothing matches, the "default" param is returned.
func ParseYesOrNo(text models.Value, params Params) models.Value {
	s, ok := text.Text()
	if !ok || s == "" {
		return fallback(params, ErrNotText)
	}

	norm := cases.Lower(language.Und).String(strings.TrimSpace(s))
	if _, ok := yesSet[norm]; ok {
		return models.Present(AnswerYes)
	}
	if _, ok := noSet[norm]; ok {
		return models.Present(AnswerNo)
	}
	if hasWordPrefix(norm, yesPatterns) {
		return models.Present(AnswerYes)
	}
	if hasWordPrefix(norm, noPatterns) {
		return models.Present(AnswerNo)
	}
	return fallback(params, ErrNoMatch)
}

func hasWordPrefix(s string, patterns []string) bool {
	for _, p := range patterns {
		if len(p) <= 1 || !strings.HasPrefix(s, p) {
			continue
		}
		rest := s[len(p):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func fallback(params Params, reason error) models.Value {
	if def, ok := params["default"]; ok && def != nil {
		return models.Present(def)
	}
	return models.Absent(reason)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
