// Package cfstr provides a small byte-slice stream parser used to pull
// tokens (words, integers, lines) out of wire protocol data without
// allocating a new string per token.
//
// It is a direct Go port of
// original_source/CFCore/include/CF/StringParser.h's StringParser: a
// cursor over a fixed buffer plus a handful of prepackaged "stop
// masks" describing where a given Consume call should halt.
package cfstr

// Mask is a 256-entry stop set: Mask[b] is true if byte b should halt a
// ConsumeUntil call.
type Mask [256]bool

// The five canonical stop masks the original prepackages as
// static arrays (StringParser::sWordMask, sEOLMask, and so on).
var (
	// WordMask stops at the first non-word byte, for ConsumeWord.
	WordMask Mask
	// EOLMask stops at CR or LF, for GetThruEOL.
	EOLMask Mask
	// DigitMask stops at the first digit, for ConsumeUntil.
	DigitMask Mask
	// EOLWhitespaceMask stops at CR, LF, space or tab, for
	// ConsumeUntil.
	EOLWhitespaceMask Mask
	// NonWordFSlashMask stops at any byte that is neither a word
	// character nor '/', for ConsumeWordAndFSlash (path segments).
	NonWordFSlashMask Mask
	// whitespaceStopMask stops at the first non-whitespace byte, for
	// ConsumeWhitespace (the original's sNonWhitespaceMask).
	whitespaceStopMask Mask
)

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func init() {
	for i := 0; i < 256; i++ {
		b := byte(i)
		WordMask[i] = !isWordByte(b)
		EOLMask[i] = b == '\r' || b == '\n'
		DigitMask[i] = isDigitByte(b)
		EOLWhitespaceMask[i] = EOLMask[i] || b == ' ' || b == '\t'
		NonWordFSlashMask[i] = !isWordByte(b) && b != '/'
		whitespaceStopMask[i] = !isSpaceByte(b)
	}
}

// Parser is a cursor over a fixed byte slice.
type Parser struct {
	data []byte
	pos  int
	line int
}

// New creates a Parser positioned at the start of data. data is not
// copied; the caller must keep it alive and unmodified for the
// Parser's lifetime.
func New(data []byte) *Parser {
	return &Parser{data: data, line: 1}
}

// Peek returns the current byte without consuming it, or 0 at EOF.
func (p *Parser) Peek() byte {
	if p.pos >= len(p.data) {
		return 0
	}
	return p.data[p.pos]
}

// IsEmpty reports whether the cursor is at EOF.
func (p *Parser) IsEmpty() bool { return p.pos >= len(p.data) }

// ParsedLen returns how many bytes have been consumed so far.
func (p *Parser) ParsedLen() int { return p.pos }

// RemainingLen returns how many bytes are left unconsumed.
func (p *Parser) RemainingLen() int { return len(p.data) - p.pos }

// CurrentLine returns the 1-based line number at the cursor, counting
// every '\n' consumed so far.
func (p *Parser) CurrentLine() int { return p.line }

func (p *Parser) advance() {
	if p.data[p.pos] == '\n' {
		p.line++
	}
	p.pos++
}

// ConsumeUntil advances past every byte not in stop, returning the
// consumed span (may be empty).
func (p *Parser) ConsumeUntil(stop Mask) []byte {
	start := p.pos
	for p.pos < len(p.data) && !stop[p.data[p.pos]] {
		p.advance()
	}
	return p.data[start:p.pos]
}

// ConsumeUntilByte is ConsumeUntil for a single stop byte rather than a
// full mask.
func (p *Parser) ConsumeUntilByte(stop byte) []byte {
	start := p.pos
	for p.pos < len(p.data) && p.data[p.pos] != stop {
		p.advance()
	}
	return p.data[start:p.pos]
}

// ConsumeWord returns the next run of word characters.
func (p *Parser) ConsumeWord() []byte { return p.ConsumeUntil(WordMask) }

// ConsumeWordAndFSlash returns the next run of word characters and
// forward slashes, for parsing path-like tokens.
func (p *Parser) ConsumeWordAndFSlash() []byte { return p.ConsumeUntil(NonWordFSlashMask) }

// ConsumeWhitespace skips a run of spaces, tabs, CRs and LFs.
func (p *Parser) ConsumeWhitespace() []byte { return p.ConsumeUntil(whitespaceStopMask) }

// ConsumeInteger parses a run of decimal digits at the cursor, returning
// its value and the consumed span. If no digits are present, both the
// value and the span are zero-length.
func (p *Parser) ConsumeInteger() (uint64, []byte) {
	start := p.pos
	for p.pos < len(p.data) && isDigitByte(p.data[p.pos]) {
		p.advance()
	}
	span := p.data[start:p.pos]
	var v uint64
	for _, b := range span {
		v = v*10 + uint64(b-'0')
	}
	return v, span
}

// Expect consumes stopChar if it is the current byte, reporting whether
// it matched.
func (p *Parser) Expect(stopChar byte) bool {
	if p.pos < len(p.data) && p.data[p.pos] == stopChar {
		p.advance()
		return true
	}
	return false
}

// ExpectEOL consumes a line terminator (\r\n, \r or \n) at the cursor,
// or succeeds trivially at end of stream.
func (p *Parser) ExpectEOL() bool {
	if p.pos >= len(p.data) {
		return true
	}
	switch p.data[p.pos] {
	case '\n':
		p.advance()
		return true
	case '\r':
		p.advance()
		if p.pos < len(p.data) && p.data[p.pos] == '\n' {
			p.advance()
		}
		return true
	default:
		return false
	}
}

// GetThru consumes up to and including stop, returning the span before
// it. ok is false if stop was never found (the whole remainder is
// returned as the span in that case).
func (p *Parser) GetThru(stop byte) (span []byte, ok bool) {
	span = p.ConsumeUntilByte(stop)
	ok = p.Expect(stop)
	return span, ok
}

// GetThruEOL consumes up to and past the next line terminator.
func (p *Parser) GetThruEOL() (span []byte, ok bool) {
	span = p.ConsumeUntil(EOLMask)
	ok = p.ExpectEOL()
	return span, ok
}

// UnQuote strips one layer of matching double quotes from s, if
// present; otherwise it returns s unchanged.
func UnQuote(s []byte) []byte {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
