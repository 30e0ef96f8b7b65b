// Package repair recovers a JSON diagram description from noisy generator
// output. LiteClean is cheap and safe on partial buffers; FullRepair runs
// once on the finished buffer and always yields a JSON array.
package repair

import (
	"regexp"
	"strings"
)

// tagName matches element names that carry model reasoning, e.g. thinking,
// redacted_reasoning, antml:thinking.
const tagName = `[a-z_:-]*(?:reasoning|thinking|redacted|thought|analysis)[\w:-]*`

var (
	pairedTag   = regexp.MustCompile(`(?is)<\s*` + tagName + `(?:\s[^<>]*)?>.*?<\s*/\s*` + tagName + `\s*>`)
	unpairedTag = regexp.MustCompile(`(?i)<\s*/?\s*` + tagName + `(?:\s[^<>]*)?/?\s*>`)
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)

	leadingFence  = regexp.MustCompile("^```(?:json|javascript|js)?[ \\t]*\\n?")
	trailingFence = regexp.MustCompile("\\n?```\\s*$")
)

// maxCleanPasses bounds the rewrite loop; nested wrappers need more than one.
const maxCleanPasses = 4

// LiteClean strips reasoning tags, HTML comments and markdown fences from
// buffer. It never balances brackets or touches quotes, so it is safe to call
// on every incoming chunk.
func LiteClean(buffer string) string {
	out := buffer
	for i := 0; i < maxCleanPasses; i++ {
		next := cleanPass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func cleanPass(s string) string {
	s = pairedTag.ReplaceAllString(s, "")
	s = unpairedTag.ReplaceAllString(s, "")
	s = htmlComment.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
