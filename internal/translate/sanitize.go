package translate

import (
	"regexp"
	"strings"
)

var (
	noteLineRe    = regexp.MustCompile(`(?i)^\s*(note|translation note|disclaimer)\s*:`)
	inlineNoteRe  = regexp.MustCompile(`(?i)[\(\[]\s*(note|disclaimer)\s*:[^\)\]]*[\)\]]`)
	labelPrefixRe = regexp.MustCompile(`(?i)^\s*(translation|translated|译文|翻译)\s*[:：]\s*`)
)

// SanitizeAIText strips the disclaimers, labels and quotes language models
// like to wrap around a translation.
func SanitizeAIText(s string) string {
	s = inlineNoteRe.ReplaceAllString(s, "")
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || noteLineRe.MatchString(line) {
			continue
		}
		kept = append(kept, labelPrefixRe.ReplaceAllString(line, ""))
	}
	out := strings.Join(kept, " ")
	out = strings.Join(strings.Fields(out), " ")
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}, {"'", "'"}} {
		if len(out) >= len(q[0])+len(q[1]) && strings.HasPrefix(out, q[0]) && strings.HasSuffix(out, q[1]) {
			out = strings.TrimSpace(out[len(q[0]) : len(out)-len(q[1])])
		}
	}
	return out
}
