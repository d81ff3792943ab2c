package invoice

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Word is one normalized word and the byte span of source text it covers
type Word struct {
	Text  string
	Start int
	End   int
}

// gap widths; a line break always separates words
const (
	tabWidth     = 4
	newlineWidth = 1 << 10
)

type piece struct {
	text       string
	start, end int
	gapBefore  int
}

// splitPieces cuts s into whitespace-separated pieces, remembering how wide
// the whitespace in front of each piece was.
func splitPieces(s string) []piece {
	var pieces []piece
	gap := 0
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				pieces = append(pieces, piece{text: s[start:i], start: start, end: i, gapBefore: gap})
				start = -1
				gap = 0
			}
			switch r {
			case '\n', '\r', '\f', '\v':
				gap += newlineWidth
			case '\t':
				gap += tabWidth
			default:
				gap++
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		pieces = append(pieces, piece{text: s[start:], start: start, end: len(s), gapBefore: gap})
	}
	return pieces
}

func isSingleRune(s string) bool {
	return utf8.RuneCountInString(s) == 1
}

// CollapseLetterSpacing undoes the letter spacing PDF extraction inserts.
// A run of single-character pieces is glued back together wherever the gap
// between two of them is the run's narrowest gap; any wider gap inside the
// run is a word boundary. Multi-character pieces are kept as words.
//
//	"U N I T   P R I C E" -> ["UNIT", "PRICE"]
//	"D E S C R I P T I O N Q U A N T I T Y" -> ["DESCRIPTIONQUANTITY"]
func CollapseLetterSpacing(s string) []Word {
	pieces := splitPieces(s)
	words := make([]Word, 0, len(pieces))

	for i := 0; i < len(pieces); {
		if !isSingleRune(pieces[i].text) {
			words = append(words, Word{Text: pieces[i].text, Start: pieces[i].start, End: pieces[i].end})
			i++
			continue
		}

		j := i + 1
		for j < len(pieces) && isSingleRune(pieces[j].text) && pieces[j].gapBefore < newlineWidth {
			j++
		}
		run := pieces[i:j]
		i = j

		narrowest := newlineWidth
		for k := 1; k < len(run); k++ {
			if run[k].gapBefore < narrowest {
				narrowest = run[k].gapBefore
			}
		}

		var b strings.Builder
		current := Word{Start: run[0].start}
		for k, p := range run {
			if k > 0 && p.gapBefore > narrowest {
				current.Text = b.String()
				words = append(words, current)
				b.Reset()
				current = Word{Start: p.start}
			}
			b.WriteString(p.text)
			current.End = p.end
		}
		current.Text = b.String()
		words = append(words, current)
	}
	return words
}

// Normalizer rebuilds a fixed vocabulary of tokens (e.g. table header
// labels) from letter-spaced extraction output. Matching is case-insensitive
// and the returned words use the vocabulary's spelling.
type Normalizer struct {
	canonical map[string]string // squeezed upper-case form -> token
	prefixes  map[string]bool
}

// NewNormalizer builds a normalizer for the given tokens. A token may hold
// several words separated by single spaces ("UNIT PRICE").
func NewNormalizer(tokens ...string) *Normalizer {
	n := &Normalizer{
		canonical: make(map[string]string, len(tokens)),
		prefixes:  make(map[string]bool),
	}
	for _, tok := range tokens {
		key := squeeze(tok)
		n.canonical[key] = tok
		for i := 1; i <= len(key); i++ {
			n.prefixes[key[:i]] = true
		}
	}
	return n
}

func squeeze(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// Normalize collapses letter spacing in s and then joins consecutive
// fragments that spell a vocabulary token. Fragments are only joined when
// the whole token is spelled out; two tokens that extraction glued into one
// fragment are not split apart.
func (n *Normalizer) Normalize(s string) []Word {
	frags := CollapseLetterSpacing(s)
	out := make([]Word, 0, len(frags))

	for i := 0; i < len(frags); {
		var acc string
		match := -1
		for j := i; j < len(frags); j++ {
			acc += strings.ToUpper(frags[j].Text)
			if !n.prefixes[acc] {
				break
			}
			if _, ok := n.canonical[acc]; ok {
				match = j
			}
		}
		if match < 0 {
			out = append(out, frags[i])
			i++
			continue
		}
		key := ""
		for k := i; k <= match; k++ {
			key += strings.ToUpper(frags[k].Text)
		}
		out = append(out, Word{Text: n.canonical[key], Start: frags[i].Start, End: frags[match].End})
		i = match + 1
	}
	return out
}

// NormalizeString is Normalize joined with single spaces
func (n *Normalizer) NormalizeString(s string) string {
	return JoinWords(n.Normalize(s))
}

// JoinWords joins word texts with single spaces
func JoinWords(words []Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}
