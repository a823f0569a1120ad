package markdown

import (
	"regexp"
	"strings"
)

// fenceRe captures fenced block bodies, tolerating an optional
// "markdown" info string after the opening fence.
var fenceRe = regexp.MustCompile("(?s)```(?:markdown)?[ \t]*\n?(.*?)\n?[ \t]*```")

// ExtractFinalContent returns the usable text from a raw model reply.
// When the reply contains fenced blocks, the longest block wins: models
// wrap the full document in a fence and shorter fences are usually
// illustrative snippets. Without fences the reply is returned as is.
// The result is always trimmed.
func ExtractFinalContent(raw string) string {
	matches := fenceRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(raw)
	}
	longest := ""
	for _, m := range matches {
		if len(m[1]) > len(longest) {
			longest = m[1]
		}
	}
	return strings.TrimSpace(longest)
}
