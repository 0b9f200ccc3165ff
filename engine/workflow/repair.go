package workflow

import "bytes"

// Repair note kinds.
const (
	RepairTrailingComma = "trailing-comma"
	RepairBareKey       = "bare-key"
	RepairSingleQuotes  = "single-quoted-string"
	RepairMissingComma  = "missing-comma"
)

// RepairNote records one edit made by the repair pre-pass, positioned against
// the original input.
type RepairNote struct {
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Detail string `json:"detail"`
}

// RepairJSON applies a single tolerant pass over near-JSON input: trailing
// commas are dropped, bare object keys are quoted, single-quoted strings are
// converted, and missing member separators are inserted. The result is not
// guaranteed to be valid JSON (genuinely broken input still fails the real
// decoder), but every edit is reported so callers can surface what changed.
func RepairJSON(in []byte) ([]byte, []RepairNote) {
	var out bytes.Buffer
	out.Grow(len(in) + 16)
	var notes []RepairNote
	depth := 0
	afterValue := false

	note := func(kind, detail string, at int) {
		line, col := lineColumn(in, int64(at))
		notes = append(notes, RepairNote{Kind: kind, Line: line, Column: col, Detail: detail})
	}
	insertComma := func(at int) {
		if afterValue && depth > 0 {
			out.WriteByte(',')
			note(RepairMissingComma, "inserted missing separator", at)
		}
	}

	i := 0
	for i < len(in) {
		c := in[i]
		switch {
		case c == '"' || c == '\'':
			insertComma(i)
			normalized, consumed := readStringToken(in[i:], c)
			if c == '\'' {
				note(RepairSingleQuotes, "converted single-quoted string", i)
			}
			out.Write(normalized)
			i += consumed
			afterValue = true
			continue
		case c == '{' || c == '[':
			insertComma(i)
			depth++
			out.WriteByte(c)
			afterValue = false
		case c == '}' || c == ']':
			if depth > 0 {
				depth--
			}
			out.WriteByte(c)
			afterValue = true
		case c == ',':
			j := skipSpace(in, i+1)
			if j < len(in) && (in[j] == '}' || in[j] == ']') {
				note(RepairTrailingComma, "removed trailing comma", i)
				i++
				continue
			}
			out.WriteByte(c)
			afterValue = false
		case c == ':':
			out.WriteByte(c)
			afterValue = false
		case isSpaceByte(c):
			out.WriteByte(c)
		case isIdentStart(c):
			ident, consumed := readIdent(in[i:])
			j := skipSpace(in, i+consumed)
			if j < len(in) && in[j] == ':' {
				insertComma(i)
				out.WriteByte('"')
				out.Write(ident)
				out.WriteByte('"')
				note(RepairBareKey, "quoted bare key "+string(ident), i)
			} else {
				insertComma(i)
				out.Write(ident)
			}
			i += consumed
			afterValue = true
			continue
		case c == '-' || (c >= '0' && c <= '9'):
			insertComma(i)
			num, consumed := readNumberToken(in[i:])
			out.Write(num)
			i += consumed
			afterValue = true
			continue
		default:
			out.WriteByte(c)
		}
		i++
	}
	return out.Bytes(), notes
}

// readStringToken consumes a string literal starting at in[0] (which must be
// the delimiter) and returns it normalized to double quotes. Escaped inner
// delimiters are preserved; double quotes inside single-quoted strings gain
// an escape.
func readStringToken(in []byte, delim byte) ([]byte, int) {
	var tok bytes.Buffer
	tok.WriteByte('"')
	i := 1
	for i < len(in) {
		c := in[i]
		if c == '\\' && i+1 < len(in) {
			next := in[i+1]
			if delim == '\'' && next == '\'' {
				tok.WriteByte('\'')
			} else {
				tok.WriteByte(c)
				tok.WriteByte(next)
			}
			i += 2
			continue
		}
		if c == delim {
			i++
			break
		}
		if delim == '\'' && c == '"' {
			tok.WriteString(`\"`)
			i++
			continue
		}
		tok.WriteByte(c)
		i++
	}
	tok.WriteByte('"')
	return tok.Bytes(), i
}

func readIdent(in []byte) ([]byte, int) {
	i := 0
	for i < len(in) && isIdentByte(in[i]) {
		i++
	}
	return in[:i], i
}

func readNumberToken(in []byte) ([]byte, int) {
	i := 0
	for i < len(in) {
		c := in[i]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			i++
			continue
		}
		break
	}
	return in[:i], i
}

func skipSpace(in []byte, i int) int {
	for i < len(in) && isSpaceByte(in[i]) {
		i++
	}
	return i
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
