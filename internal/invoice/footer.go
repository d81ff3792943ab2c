package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/garyjia/labinvoice/internal/domain/entity"
)

// Footer fact: "Patient: {name}, Due {m/d/yyyy}". The name runs up to the
// first comma and never crosses a line break.
var (
	footerPattern  = regexp.MustCompile(`(?i)Patient:[ \t]*([^,\n]+?)[ \t]*,\s*Due\s*(\d{1,2}/\d{1,2}/\d{4})\b`)
	patientPattern = regexp.MustCompile(`(?i)Patient:`)
)

type footer struct {
	patientName string
	dueDate     time.Time
	start, end  int // byte span of the whole fact
}

func findFooter(text string) (*footer, error) {
	m := footerPattern.FindStringSubmatchIndex(text)
	if m == nil {
		pe := newParseError(KindMissingFooter, `no "Patient: <name>, Due <m/d/yyyy>" fact in document`)
		if loc := patientPattern.FindStringIndex(text); loc != nil {
			pe.Offset = loc[0]
			pe.Line = lineAt(text, loc[0])
			pe.Context = excerpt(lineContaining(text, loc[0]))
		}
		return nil, pe
	}

	name := strings.TrimSpace(text[m[2]:m[3]])
	if name == "" {
		return nil, &ParseError{
			Kind:    KindMissingFooter,
			Offset:  m[0],
			Line:    lineAt(text, m[0]),
			Context: excerpt(text[m[0]:m[1]]),
		}
	}

	raw := text[m[4]:m[5]]
	due, err := time.Parse(entity.DateLayout, raw)
	if err != nil {
		return nil, &ParseError{
			Kind:    KindInvalidDate,
			Offset:  m[4],
			Line:    lineAt(text, m[4]),
			Context: raw,
		}
	}

	return &footer{
		patientName: name,
		dueDate:     entity.DateOf(due),
		start:       m[0],
		end:         m[1],
	}, nil
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

func lineContaining(text string, offset int) string {
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		return text[start:]
	}
	return text[start : offset+end]
}

const maxExcerpt = 80

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
