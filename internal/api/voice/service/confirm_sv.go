package voiceService

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

type confirmReply int

const (
	replyNone confirmReply = iota
	replyConfirm
	replyCancel
)

func DefaultAffirmative() []string {
	return []string{"是的", "对", "好的", "确认", "可以", "yes", "ok", "okay", "sure", "confirm"}
}

func DefaultNegative() []string {
	return []string{"不", "取消", "算了", "不要", "停止", "no", "cancel", "stop"}
}

type confirmationMatcher struct {
	affirmative []string
	negative    []string
}

func newConfirmationMatcher(affirmative, negative []string) *confirmationMatcher {
	return &confirmationMatcher{
		affirmative: foldAll(affirmative),
		negative:    foldAll(negative),
	}
}

// match checks negative words first so that "不要确认" cancels.
func (m *confirmationMatcher) match(transcript string) confirmReply {
	text := fold(transcript)
	if text == "" {
		return replyNone
	}

	for _, word := range m.negative {
		if containsWord(text, word) {
			return replyCancel
		}
	}
	for _, word := range m.affirmative {
		if containsWord(text, word) {
			return replyConfirm
		}
	}

	return replyNone
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(width.Fold.String(s)))
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = fold(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// containsWord matches Latin keywords on word boundaries and everything else
// as a plain substring.
func containsWord(text, word string) bool {
	if !isLatin(word) {
		return strings.Contains(text, word)
	}

	for offset := 0; ; {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		offset = start + 1
	}
}

func isLatin(word string) bool {
	for _, r := range word {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func boundaryBefore(text string, i int) bool {
	return i == 0 || !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	return i >= len(text) || !isWordByte(text[i])
}
