package repair

import (
	"strings"
	"unicode"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/text/width"
)

// EmptyDocument is returned when nothing could be recovered.
const EmptyDocument = "[]"

// UnrecoverableWarning is the message attached to a failed repair.
const UnrecoverableWarning = "could not recover a diagram from the generated output"

const (
	// maxOpeners caps how many candidate start positions are tried.
	maxOpeners = 8
	// maxSalvageCuts caps how many truncation points are tried per candidate.
	maxSalvageCuts = 64
	// maxStabilizePasses bounds the fixpoint loop in FullRepair.
	maxStabilizePasses = 3
)

// Result is the outcome of FullRepair.
type Result struct {
	// Text is always a JSON array.
	Text string
	// Recovered is false when Text is the empty fallback.
	Recovered bool
	// Warning is set when Recovered is false.
	Warning string
}

// FullRepair recovers a JSON array from buffer. It never fails: on exhaustion
// it returns EmptyDocument with Recovered unset. FullRepair(FullRepair(s).Text)
// yields the same text.
func FullRepair(buffer string) Result {
	text, ok := repairOnce(buffer)
	if !ok {
		return failed()
	}
	for i := 0; i < maxStabilizePasses; i++ {
		next, ok := repairOnce(text)
		if !ok {
			return failed()
		}
		if next == text {
			return Result{Text: text, Recovered: true}
		}
		text = next
	}
	log.Debug("repair: output did not stabilize")
	return failed()
}

func failed() Result {
	return Result{Text: EmptyDocument, Warning: UnrecoverableWarning}
}

// repairOnce runs the pipeline once: clean, locate, extract or pad, fix
// quotes, retry. Each candidate start position is tried in turn.
func repairOnce(buffer string) (string, bool) {
	text := LiteClean(buffer)

	for attempt := 0; attempt < maxOpeners; attempt++ {
		start := strings.IndexAny(text, "[{")
		if start < 0 {
			return "", false
		}
		text = text[start:]

		if doc, ok := recoverFrom(text); ok {
			return asArray(doc), true
		}
		// Skip this opener and look for the next one.
		text = text[1:]
	}
	return "", false
}

func recoverFrom(text string) (string, bool) {
	if isDocument(text) {
		return text, true
	}

	candidate := balance(text)
	if isDocument(candidate) {
		return candidate, true
	}

	quoted := fixUnescapedQuotes(candidate)
	if isDocument(quoted) {
		return quoted, true
	}
	if rebalanced := balance(quoted); isDocument(rebalanced) {
		return rebalanced, true
	}

	// Interior quotes can hide the real end of the structure from the
	// scanner, so repair the whole text before extracting again.
	whole := fixUnescapedQuotes(text)
	if rebalanced := balance(whole); isDocument(rebalanced) {
		return rebalanced, true
	}
	if salvaged, ok := salvage(whole); ok {
		log.Debug("repair: truncated to last complete member")
		return salvaged, true
	}
	return "", false
}

// balance extracts the first balanced structure, or when the text is cut off
// mid-structure, truncates trailing prose and pads missing closers.
func balance(text string) string {
	if extracted, ok := extractBalanced(text); ok {
		return extracted
	}
	if cut, ok := truncateProse(text); ok {
		text = cut
	}
	return padClosers(text)
}

// extractBalanced scans from the opener at text[0] and returns everything up
// to the point where nesting depth returns to zero.
func extractBalanced(text string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
			if depth < 0 {
				return "", false
			}
		}
	}
	return "", false
}

// truncateProse cuts text after the first closer that is followed by
// something that reads as prose rather than more structure.
func truncateProse(text string) (string, bool) {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ']', '}':
			if looksLikeProse(text[i+1:]) {
				return text[:i+1], true
			}
		}
	}
	return text, false
}

// prosePunctuation is full-width punctuation common in explanations that
// follow a generated document.
const prosePunctuation = "，。；：！？、"

func looksLikeProse(rest string) bool {
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	if rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	if strings.ContainsRune(prosePunctuation, r) {
		return true
	}
	return !strings.ContainsRune(`,]}[{":`, r)
}

// padClosers appends the closers needed to balance the opener count. The
// order follows a plain stack walk that ignores strings, except that an
// unterminated trailing string is closed first.
func padClosers(text string) string {
	var stack []byte
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		}
	}
	if len(stack) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(text, " \t\r\n"))
	if endsInsideString(text) {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func endsInsideString(text string) bool {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		}
	}
	return inString
}

// fixUnescapedQuotes escapes quotes that appear inside a string but are not
// followed by a structural character.
func fixUnescapedQuotes(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	inString := false
	escapeNext := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escapeNext {
			escapeNext = false
			b.WriteByte(c)
			continue
		}
		if c == '\\' && inString {
			escapeNext = true
			b.WriteByte(c)
			continue
		}
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if !inString {
			inString = true
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j == len(text) || strings.IndexByte(":,}]", text[j]) >= 0 {
			inString = false
			b.WriteByte(c)
		} else {
			b.WriteString(`\"`)
		}
	}
	return b.String()
}

// salvage keeps the longest prefix that ends right before a member separator
// and parses once closed.
func salvage(text string) (string, bool) {
	type cut struct {
		pos   int
		stack []byte
	}
	var cuts []cut
	var stack []byte
	inString := false
	escaped := false
scan:
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			if len(stack) == 0 {
				break scan
			}
		case ',':
			cuts = append(cuts, cut{pos: i, stack: append([]byte(nil), stack...)})
		}
	}

	tried := 0
	for k := len(cuts) - 1; k >= 0 && tried < maxSalvageCuts; k-- {
		tried++
		c := cuts[k]
		var b strings.Builder
		b.WriteString(strings.TrimRight(text[:c.pos], " \t\r\n"))
		for i := len(c.stack) - 1; i >= 0; i-- {
			b.WriteByte(c.stack[i])
		}
		if candidate := b.String(); isDocument(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isDocument reports whether text is valid JSON with an array or object root.
func isDocument(text string) bool {
	if text == "" || (text[0] != '[' && text[0] != '{') {
		return false
	}
	return gjson.Valid(text)
}

// asArray wraps a lone object so callers always receive a list. A scene
// object yields its elements array.
func asArray(doc string) string {
	if !strings.HasPrefix(doc, "{") {
		return doc
	}
	if elements := gjson.Get(doc, "elements"); elements.IsArray() {
		return elements.Raw
	}
	return "[" + doc + "]"
}
