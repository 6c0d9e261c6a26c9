package structure

import (
	"context"
	"regexp"
	"strings"
)

// optionsKeyword finds an options introducer followed by a colon. The
// first group spans the keyword itself.
var optionsKeyword = regexp.MustCompile(`(?i)(?:^|[^\p{L}])((?:options|choices|answers|الخيارات|الاختيارات)(?:\s+(?:are|هي))?\s*:)`)

// optionMarker matches a leading enumerator: lettered, numbered or bulleted.
var optionMarker = regexp.MustCompile(`^\s*(?:\(?[A-Za-z\x{0621}-\x{064A}]\x{0640}?\s*[.)\-]|\(?(?:[0-9]{1,2}|[\x{0660}-\x{0669}]{1,2})\s*[.)\-]|[*•\-–]\s+)\s*`)

var listSeparator = regexp.MustCompile(`[,،;]`)

// DefaultFillers are conversational lead-ins removed from stems.
var DefaultFillers = []string{
	"جاني سؤال",
	"جالي سؤال",
	"السؤال كان",
	"كان فيه سؤال",
	"سؤال اليوم",
	"i got a question",
	"i was asked",
	"the question was",
	"question of the day",
	"today's question",
}

const stemTrimSet = " \t\r\n/|-–:"

// Rules is the deterministic structurer.
type Rules struct {
	filler *regexp.Regexp
}

// NewRules builds a rule-based structurer. An empty phrase list uses
// DefaultFillers.
func NewRules(fillers ...string) Rules {
	if len(fillers) == 0 {
		fillers = DefaultFillers
	}
	quoted := make([]string, 0, len(fillers))
	for _, f := range fillers {
		if f = strings.TrimSpace(f); f != "" {
			quoted = append(quoted, regexp.QuoteMeta(f))
		}
	}
	return Rules{filler: regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)[^\n:]*:?`)}
}

func (r Rules) Name() string { return "rules" }

// Structure never fails. When nothing option-like is found, or the stem
// ends up empty, the raw input is returned as the stem with no options.
func (r Rules) Structure(_ context.Context, raw string) Result {
	fallback := Result{Stem: raw, Options: []string{}, Source: r.Name()}
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	var stem string
	var options []string
	if loc := optionsKeyword.FindStringSubmatchIndex(raw); loc != nil {
		stem = raw[:loc[2]]
		options = splitBlock(raw[loc[3]:])
	} else {
		stem, options = classifyLines(raw)
	}

	options = cleanOptions(options)
	if len(options) == 0 {
		return fallback
	}

	stem = r.cleanStem(stem)
	if stem == "" {
		return fallback
	}
	return Result{Stem: stem, Options: options, Source: r.Name()}
}

// classifyLines walks lines until the first option marker; from then on
// every line belongs to the options block.
func classifyLines(raw string) (string, []string) {
	var stemLines, optionLines []string
	reading := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !reading && optionMarker.MatchString(line) {
			reading = true
		}
		if reading {
			optionLines = append(optionLines, line)
		} else {
			stemLines = append(stemLines, line)
		}
	}
	return strings.Join(stemLines, "\n"), optionLines
}

// splitBlock turns the text after an options keyword into option lines.
// A single line is treated as a separated list.
func splitBlock(block string) []string {
	var lines []string
	for _, l := range strings.Split(block, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 1 && !optionMarker.MatchString(lines[0]) {
		return listSeparator.Split(lines[0], -1)
	}
	return lines
}

func cleanOptions(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(optionMarker.ReplaceAllString(l, ""))
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (r Rules) cleanStem(stem string) string {
	if r.filler != nil {
		stem = r.filler.ReplaceAllString(stem, "")
	}
	var kept []string
	for _, l := range strings.Split(stem, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Trim(strings.Join(kept, "\n"), stemTrimSet)
}
