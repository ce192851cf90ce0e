package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentences splits text after sentence-ending punctuation. Each sentence keeps
// its trailing punctuation and whitespace, so joining the result reproduces
// the input exactly.
func Sentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	pos := 0 // byte offset of runes[i]
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		pos += utf8.RuneLen(r)
		if !isSentenceEnd(r) {
			continue
		}
		// Absorb closing quotes and brackets, then require whitespace or end.
		j := i + 1
		end := pos
		for j < len(runes) && isCloser(runes[j]) {
			end += utf8.RuneLen(runes[j])
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) && !isWideEnd(r) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			end += utf8.RuneLen(runes[j])
			j++
		}
		out = append(out, text[start:end])
		start = end
		pos = end
		i = j - 1
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// SplitBudget groups sentences into pieces of at most budget runes. A sentence
// longer than the budget is cut at the last whitespace before the budget, or
// exactly at the budget when it has none.
func SplitBudget(text string, budget int) []string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, s := range Sentences(text) {
		for _, piece := range cutRunes(s, budget) {
			pn := utf8.RuneCountInString(piece)
			if n > 0 && n+pn > budget {
				flush()
			}
			cur.WriteString(piece)
			n += pn
		}
	}
	flush()
	return out
}

// cutRunes breaks s into pieces of at most limit runes, preferring whitespace.
func cutRunes(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var out []string
	for len(runes) > limit {
		cut := limit
		for k := limit; k > limit/2; k-- {
			if unicode.IsSpace(runes[k-1]) {
				cut = k
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// isWideEnd reports CJK terminators, which are not followed by spaces.
func isWideEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	}
	return false
}
