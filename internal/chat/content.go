package chat

import (
	"regexp"
	"strings"
)

var (
	wholeFence = regexp.MustCompile("(?s)^```\\w*\\s*\\n?(.*?)\\n?```\\s*$")
	innerFence = regexp.MustCompile("(?s)```(?:markdown|md|text|txt)?\\s*\\n(.*?)\\n```")
)

// NormalizeContent unwraps assistant replies the model wrapped in code fences
// so they render as markdown instead of a code block.
func NormalizeContent(s string) string {
	out := strings.TrimSpace(s)
	if m := wholeFence.FindStringSubmatch(out); m != nil {
		out = strings.TrimSpace(m[1])
	}
	return innerFence.ReplaceAllStringFunc(out, func(block string) string {
		m := innerFence.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		return strings.TrimSpace(m[1])
	})
}
