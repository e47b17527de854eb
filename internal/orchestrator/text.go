package orchestrator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// boundaryRunes end a sentence for synthesis purposes. ASCII and CJK
// terminators plus newline, so list-style agent output still splits.
const boundaryRunes = "。！？.!?\n"

// SentenceSplitter accumulates response deltas and yields complete
// sentences as they close. A trailing fragment is flushed explicitly.
type SentenceSplitter struct {
	buf strings.Builder
}

// Push appends one delta and returns any sentences completed by it.
func (s *SentenceSplitter) Push(delta string) []string {
	s.buf.WriteString(delta)
	var out []string
	text := s.buf.String()
	for {
		i := strings.IndexAny(text, boundaryRunes)
		if i < 0 {
			break
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		sentence := strings.TrimSpace(text[:i+size])
		text = text[i+size:]
		if sentence != "" {
			out = append(out, sentence)
		}
	}
	s.buf.Reset()
	s.buf.WriteString(text)
	return out
}

// Flush returns the trailing fragment, if any.
func (s *SentenceSplitter) Flush() string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest
}

var (
	reCodeBlock  = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reBoldItalic = regexp.MustCompile(`(\*\*\*|\*\*|\*|___|__|_)(\S(?:.*?\S)?)(\*\*\*|\*\*|\*|___|__|_)`)
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reBullet     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips formatting that reads badly aloud: markdown
// emphasis, headings, links (keeping the anchor text), list markers and
// code blocks.
func CleanForSpeech(s string) string {
	s = reCodeBlock.ReplaceAllString(s, "")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reBoldItalic.ReplaceAllString(s, "$2")
	s = reHeading.ReplaceAllString(s, "")
	s = reLink.ReplaceAllString(s, "$1")
	s = reBullet.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
