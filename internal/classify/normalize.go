package classify

import (
	"regexp"
	"strings"
)

// fillerWords are hesitation tokens stripped during normalization. Order is
// irrelevant; each is removed as a whole word.
var fillerWords = []string{
	"um", "uh", "ah", "like", "you know", "well", "so",
	"actually", "basically", "totally", "literally",
	"right", "okay", "alright",
}

// contractions maps common contractions to their expansions. The apostrophe
// suffix forms are applied after the full-word forms so that "won't" does
// not degrade into "wo not".
var contractions = [][2]string{
	{"won't", "will not"},
	{"can't", "cannot"},
	{"it's", "it is"},
	{"that's", "that is"},
	{"n't", " not"},
	{"'re", " are"},
	{"'ve", " have"},
	{"'ll", " will"},
	{"'d", " would"},
	{"'m", " am"},
}

var (
	fillerPatterns = compileFillerPatterns()
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

func compileFillerPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(fillerWords))
	for _, w := range fillerWords {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

// Normalize lowercases text, strips filler tokens, expands contractions,
// and collapses whitespace. It never fails: unusable input normalizes to
// the empty string, which scores zero for every category.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))

	for _, re := range fillerPatterns {
		text = re.ReplaceAllString(text, "")
	}
	for _, c := range contractions {
		text = strings.ReplaceAll(text, c[0], c[1])
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
