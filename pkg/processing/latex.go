// Package processing prepares images for model backends and cleans up what
// the models send back.
package processing

import (
	"regexp"
	"strings"
)

var (
	reThink    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	reFence    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")
	reEnvWrap  = regexp.MustCompile(`(?s)^\\begin\{(equation|align|displaymath)\*?\}(.*)\\end\{(equation|align|displaymath)\*?\}$`)
	reBlankRun = regexp.MustCompile(`\n{2,}`)
)

// SanitizeLatex strips the wrapping chat models like to add around a formula:
// reasoning blocks, code fences, $ / $$ / \[ \] / \( \) delimiters and
// equation environments. Output of dedicated OCR models passes through
// unchanged apart from surrounding whitespace.
func SanitizeLatex(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(reThink.ReplaceAllString(s, ""))

	// Strip triple-backtick fences if present
	if m := reFence.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}

	for {
		before := s
		switch {
		case len(s) >= 4 && strings.HasPrefix(s, "$$") && strings.HasSuffix(s, "$$"):
			s = s[2 : len(s)-2]
		case len(s) >= 2 && strings.HasPrefix(s, "$") && strings.HasSuffix(s, "$") && strings.Count(s, "$") == 2:
			s = s[1 : len(s)-1]
		case len(s) >= 4 && strings.HasPrefix(s, `\[`) && strings.HasSuffix(s, `\]`):
			s = s[2 : len(s)-2]
		case len(s) >= 4 && strings.HasPrefix(s, `\(`) && strings.HasSuffix(s, `\)`):
			s = s[2 : len(s)-2]
		default:
			if m := reEnvWrap.FindStringSubmatch(s); m != nil && m[1] == m[3] {
				s = m[2]
			}
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}

	return reBlankRun.ReplaceAllString(s, "\n")
}
