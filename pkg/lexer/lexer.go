// Package lexer locates module linkage syntax in ECMAScript source text
// without building a syntax tree. A single pass over the bytes records
// static import specifiers, dynamic import calls, import.meta references
// and the names a module exports.
package lexer

import (
	"errors"
	"strings"
)

// ErrSyntax is returned for any malformed input. It carries no position.
var ErrSyntax = errors.New("lexer: syntax error")

// Occurrence kinds. Non-negative kinds mark dynamic imports and hold the
// index just past the opening parenthesis of the call.
const (
	KindStatic = -1
	KindMeta   = -2
)

// Occurrence is a replaceable span of the original source.
//
// For static imports Start and End bound the unquoted specifier. For
// import.meta they bound the whole expression. For dynamic imports they
// bound "import(" and ArgEnd is the index of the matching ")".
type Occurrence struct {
	Start  int `json:"s"           yaml:"s"`
	End    int `json:"e"           yaml:"e"`
	Kind   int `json:"d"           yaml:"d"`
	ArgEnd int `json:"a,omitempty" yaml:"a,omitempty"`
}

// IsStatic reports whether the occurrence is a static import or re-export.
func (o Occurrence) IsStatic() bool { return o.Kind == KindStatic }

// IsMeta reports whether the occurrence is an import.meta reference.
func (o Occurrence) IsMeta() bool { return o.Kind == KindMeta }

// IsDynamic reports whether the occurrence is a dynamic import call.
func (o Occurrence) IsDynamic() bool { return o.Kind >= 0 }

// Analysis is the result of scanning one module.
type Analysis struct {
	Imports []Occurrence `json:"imports" yaml:"imports"`
	Exports []string     `json:"exports" yaml:"exports"`
}

// Specifier returns the text an occurrence refers to: the specifier of a
// static import or the argument expression of a dynamic import.
func (a *Analysis) Specifier(source string, occ Occurrence) string {
	switch {
	case occ.IsStatic():
		return source[occ.Start:occ.End]
	case occ.IsDynamic() && occ.ArgEnd >= occ.Kind:
		return strings.TrimSpace(source[occ.Kind:occ.ArgEnd])
	default:
		return source[occ.Start:occ.End]
	}
}

// StaticSpecifiers returns the specifiers of all static imports in order.
func (a *Analysis) StaticSpecifiers(source string) []string {
	specs := make([]string, 0, len(a.Imports))

	for _, occ := range a.Imports {
		if occ.IsStatic() {
			specs = append(specs, source[occ.Start:occ.End])
		}
	}

	return specs
}

// Scan analyzes source and returns its occurrences and export names.
func Scan(source string) (*Analysis, error) {
	s := &scanner{
		src:           source,
		end:           len(source),
		lastTok:       -1,
		templateDepth: -1,
		lastClosed:    opener{tok: -1, dynamic: -1},
	}

	err := s.run()
	if err != nil {
		return nil, err
	}

	return &Analysis{Imports: s.imports, Exports: s.exports}, nil
}

// opener records an open parenthesis or brace.
type opener struct {
	// tok is the position of the token that preceded the opener, -1 if none.
	tok int
	// dynamic is the index of the dynamic import this paren belongs to, or -1.
	dynamic int
	class   bool
}

type scanner struct {
	src string
	pos int
	end int

	lastTok              int
	lastSlashWasDivision bool
	nextBraceIsClass     bool

	openTokens    []opener
	lastClosed    opener
	templateStack []int
	templateDepth int

	imports []Occurrence
	exports []string

	err error
}

func (s *scanner) run() error {
	for ; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		if isBrOrWs(ch) {
			continue
		}

		switch ch {
		case 'e':
			if len(s.openTokens) == 0 && s.keywordStart(s.pos) && s.hasPrefixAt(s.pos, "export") {
				s.exportStatement()
			}
		case 'i':
			if s.keywordStart(s.pos) && s.hasPrefixAt(s.pos, "import") {
				s.importStatement()
			}
		case 'c':
			if s.keywordStart(s.pos) && s.hasPrefixAt(s.pos, "class") && isBrOrWs(s.at(s.pos+5)) {
				s.nextBraceIsClass = true
			}
		case '(':
			s.push(opener{tok: s.lastTok, dynamic: -1})
		case ')':
			if len(s.openTokens) == 0 {
				return ErrSyntax
			}

			closed := s.pop()
			if closed.dynamic >= 0 {
				s.imports[closed.dynamic].ArgEnd = s.pos
			}
		case '{':
			s.push(opener{tok: s.lastTok, dynamic: -1, class: s.nextBraceIsClass})
			s.nextBraceIsClass = false
		case '}':
			s.closeBrace()
		case '\'', '"':
			s.stringLiteral(ch)
		case '/':
			switch s.at(s.pos + 1) {
			case '/':
				s.lineComment()

				continue
			case '*':
				s.blockComment()
				if s.err != nil {
					return s.err
				}

				continue
			}

			if s.regexAllowed() {
				s.regularExpression()
				s.lastSlashWasDivision = false
			} else {
				s.lastSlashWasDivision = true
			}
		case '`':
			s.templateString()
		}

		if s.err != nil {
			return s.err
		}

		s.lastTok = s.pos
	}

	if s.templateDepth != -1 || len(s.openTokens) > 0 {
		return ErrSyntax
	}

	return nil
}

func (s *scanner) push(o opener) {
	s.openTokens = append(s.openTokens, o)
}

func (s *scanner) pop() opener {
	o := s.openTokens[len(s.openTokens)-1]
	s.openTokens = s.openTokens[:len(s.openTokens)-1]
	s.lastClosed = o

	return o
}

func (s *scanner) closeBrace() {
	if len(s.openTokens) == 0 {
		s.err = ErrSyntax

		return
	}

	depth := len(s.openTokens)
	s.pop()

	if depth == s.templateDepth {
		s.templateDepth = s.templateStack[len(s.templateStack)-1]
		s.templateStack = s.templateStack[:len(s.templateStack)-1]
		s.templateString()

		return
	}

	if s.templateDepth != -1 && depth-1 < s.templateDepth {
		s.err = ErrSyntax
	}
}

func (s *scanner) importStatement() {
	start := s.pos
	s.pos += len("import")

	ch := s.commentWhitespace()

	switch ch {
	case '(':
		s.push(opener{tok: start, dynamic: -1})

		if s.lastTok >= 0 && s.src[s.lastTok] == '.' {
			return
		}

		s.imports = append(s.imports, Occurrence{Start: start, End: s.pos + 1, Kind: s.pos + 1})
		s.openTokens[len(s.openTokens)-1].dynamic = len(s.imports) - 1
	case '.':
		s.pos++
		s.commentWhitespace()

		if s.hasPrefixAt(s.pos, "meta") && !isIdentChar(s.at(s.pos+4)) &&
			(s.lastTok < 0 || s.src[s.lastTok] != '.') {
			s.imports = append(s.imports, Occurrence{Start: start, End: s.pos + 4, Kind: KindMeta})
			s.pos += 3

			return
		}

		s.pos--
	default:
		// "imports" and friends are identifiers, not the keyword.
		if s.pos == start+len("import") {
			s.pos--

			return
		}

		fallthrough
	case '"', '\'', '{', '*':
		// import declarations are only permitted at the top level.
		if len(s.openTokens) != 0 {
			s.pos--

			return
		}

		for s.pos < s.end {
			ch = s.src[s.pos]
			if ch == '\'' || ch == '"' {
				s.readImportString(ch)

				return
			}

			s.pos++
		}

		s.err = ErrSyntax
	}
}

func (s *scanner) readImportString(ch byte) {
	if ch != '\'' && ch != '"' {
		s.err = ErrSyntax

		return
	}

	start := s.pos + 1

	s.stringLiteral(ch)

	if s.err != nil {
		return
	}

	s.imports = append(s.imports, Occurrence{Start: start, End: s.pos, Kind: KindStatic})
}

func (s *scanner) exportStatement() {
	s.pos += len("export")
	cur := s.pos

	ch := s.commentWhitespace()
	if s.pos == cur && !isPunctuator(ch) {
		s.pos--

		return
	}

	switch ch {
	case 'd':
		if s.hasPrefixAt(s.pos, "default") {
			s.addExport(s.pos, s.pos+len("default"))
			s.pos += len("default") - 1

			return
		}
	case 'a':
		if !s.hasPrefixAt(s.pos, "async") {
			break
		}

		s.pos += len("async")
		s.commentWhitespace()

		fallthrough
	case 'f':
		if !s.hasPrefixAt(s.pos, "function") {
			s.pos--

			return
		}

		s.pos += len("function")

		ch = s.commentWhitespace()
		if ch == '*' {
			s.pos++
			s.commentWhitespace()
		}

		s.declaredName()

		return
	case 'c':
		if s.hasPrefixAt(s.pos, "class") && isBrOrWsOrPunctuatorNotDot(s.at(s.pos+5)) {
			s.pos += len("class")
			s.commentWhitespace()
			s.declaredName()

			return
		}

		if !s.hasPrefixAt(s.pos, "const") {
			break
		}

		s.pos += len("const")
		s.variableNames()

		return
	case 'v', 'l':
		if !s.hasPrefixAt(s.pos, "var") && !s.hasPrefixAt(s.pos, "let") {
			break
		}

		s.pos += len("var")
		s.variableNames()

		return
	case '{':
		s.pos++
		ch = s.commentWhitespace()

		for ch != '}' {
			start := s.pos
			s.readToWsOrPunctuator()
			nameEnd := s.pos
			s.commentWhitespace()

			ch = s.readExportAs(start, nameEnd)
			if ch == ',' {
				s.pos++
				ch = s.commentWhitespace()
			}

			if ch == '}' {
				break
			}

			if s.pos == start || s.pos >= s.end {
				s.err = ErrSyntax

				return
			}
		}

		s.pos++
		ch = s.commentWhitespace()
	case '*':
		s.pos++
		s.commentWhitespace()
		s.readExportAs(s.pos, s.pos)
		ch = s.commentWhitespace()
	}

	if ch == 'f' && s.hasPrefixAt(s.pos, "from") && !isIdentChar(s.at(s.pos+4)) {
		s.pos += len("from")
		s.readImportString(s.commentWhitespace())

		return
	}

	s.pos--
}

// declaredName records the identifier at the current position as an export
// and leaves the position on its last byte.
func (s *scanner) declaredName() {
	start := s.pos
	s.readToWsOrPunctuator()

	if s.pos > start {
		s.addExport(start, s.pos)
	}

	s.pos--
}

// variableNames records the names of a var/let/const declaration list.
// Collection stops at the first initializer or destructuring pattern.
func (s *scanner) variableNames() {
	for {
		s.commentWhitespace()
		start := s.pos

		ch := s.readToWsOrPunctuator()
		if ch == '{' || ch == '[' || s.pos == start {
			s.pos--

			return
		}

		s.addExport(start, s.pos)

		ch = s.commentWhitespace()
		if ch != ',' {
			s.pos--

			return
		}

		s.pos++
	}
}

func (s *scanner) readExportAs(start, end int) byte {
	ch := s.at(s.pos)

	if ch == 'a' && s.hasPrefixAt(s.pos, "as") && !isIdentChar(s.at(s.pos+2)) {
		s.pos += len("as")
		s.commentWhitespace()

		start = s.pos
		s.readToWsOrPunctuator()
		end = s.pos

		ch = s.commentWhitespace()
	}

	if s.pos != start {
		s.addExport(start, end)
	}

	return ch
}

func (s *scanner) addExport(start, end int) {
	s.exports = append(s.exports, s.src[start:end])
}

func (s *scanner) readToWsOrPunctuator() byte {
	for s.pos < s.end {
		ch := s.src[s.pos]
		if isBrOrWs(ch) || isPunctuator(ch) || isQuote(ch) {
			return ch
		}

		s.pos++
	}

	return 0
}

// commentWhitespace skips whitespace and comments and returns the byte at
// the new position, or 0 at the end of input.
func (s *scanner) commentWhitespace() byte {
	for ; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		if ch == '/' {
			switch s.at(s.pos + 1) {
			case '/':
				s.lineComment()

				continue
			case '*':
				s.blockComment()
				if s.err != nil {
					return 0
				}

				continue
			}

			return ch
		}

		if !isBrOrWs(ch) {
			return ch
		}
	}

	return 0
}

func (s *scanner) lineComment() {
	for s.pos < s.end && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
		s.pos++
	}
}

func (s *scanner) blockComment() {
	idx := strings.Index(s.src[s.pos+2:], "*/")
	if idx == -1 {
		s.err = ErrSyntax
		s.pos = s.end

		return
	}

	s.pos += 2 + idx + 1
}

func (s *scanner) stringLiteral(quote byte) {
	for s.pos++; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		switch ch {
		case quote:
			return
		case '\\':
			s.pos++
			if s.at(s.pos) == '\r' && s.at(s.pos+1) == '\n' {
				s.pos++
			}
		case '\n', '\r':
			s.err = ErrSyntax

			return
		}
	}

	s.err = ErrSyntax
}

func (s *scanner) templateString() {
	for s.pos++; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		switch {
		case ch == '$' && s.at(s.pos+1) == '{':
			s.pos++
			s.templateStack = append(s.templateStack, s.templateDepth)
			s.push(opener{tok: s.pos, dynamic: -1})
			s.templateDepth = len(s.openTokens)

			return
		case ch == '`':
			return
		case ch == '\\':
			s.pos++
		}
	}

	s.err = ErrSyntax
}

func (s *scanner) regularExpression() {
	for s.pos++; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		switch ch {
		case '/':
			return
		case '[':
			s.regexCharacterClass()
			if s.err != nil {
				return
			}
		case '\\':
			s.pos++
		case '\n', '\r':
			s.err = ErrSyntax

			return
		}
	}

	s.err = ErrSyntax
}

func (s *scanner) regexCharacterClass() {
	for s.pos++; s.pos < s.end; s.pos++ {
		ch := s.src[s.pos]

		switch ch {
		case ']':
			return
		case '\\':
			s.pos++
		case '\n', '\r':
			s.err = ErrSyntax

			return
		}
	}

	s.err = ErrSyntax
}

func (s *scanner) at(i int) byte {
	if i < 0 || i >= s.end {
		return 0
	}

	return s.src[i]
}

func (s *scanner) hasPrefixAt(i int, word string) bool {
	return i >= 0 && i+len(word) <= s.end && s.src[i:i+len(word)] == word
}

func (s *scanner) keywordStart(i int) bool {
	return i == 0 || isBrOrWsOrPunctuatorNotDot(s.src[i-1])
}

// precedingKeyword reports whether word ends at position end and starts at
// a keyword boundary.
func (s *scanner) precedingKeyword(end int, word string) bool {
	start := end - len(word) + 1

	return start >= 0 && s.hasPrefixAt(start, word) && s.keywordStart(start)
}
