package lexer

// regexAllowed decides whether a slash starts a regular expression literal
// by looking back at the previous token. It is a heuristic: unusual code
// can defeat it, and such misses are accepted.
func (s *scanner) regexAllowed() bool {
	if s.lastTok < 0 {
		return true
	}

	last := s.src[s.lastTok]
	prev := s.at(s.lastTok - 1)

	switch {
	case isExpressionPunctuator(last) &&
		!(last == '.' && isDigit(prev)) &&
		!(last == '+' && prev == '+') &&
		!(last == '-' && prev == '-'):
		return true
	case last == ')':
		return s.isParenKeyword(s.lastClosed.tok)
	case last == '}':
		return s.isExpressionTerminator(s.lastClosed.tok) || s.lastClosed.class
	case last == '/':
		return s.lastSlashWasDivision
	}

	return s.isExpressionKeyword(s.lastTok)
}

// expressionKeywords are keywords after which an expression, and so a
// regular expression literal, may start.
var expressionKeywords = []string{
	"await", "case", "continue", "debugger", "delete", "do", "else", "in",
	"instanceof", "new", "of", "return", "throw", "typeof", "void", "yield",
}

func (s *scanner) isExpressionKeyword(end int) bool {
	for _, kw := range expressionKeywords {
		if s.src[end] == kw[len(kw)-1] && s.precedingKeyword(end, kw) {
			return true
		}
	}

	return false
}

// isParenKeyword reports whether the paren opened after tok belongs to the
// head of a conditional or loop.
func (s *scanner) isParenKeyword(tok int) bool {
	if tok < 0 {
		return false
	}

	return s.precedingKeyword(tok, "while") || s.precedingKeyword(tok, "for") || s.precedingKeyword(tok, "if")
}

// isExpressionTerminator reports whether a brace opened after tok is a
// statement block: => ; ) else catch finally.
func (s *scanner) isExpressionTerminator(tok int) bool {
	if tok < 0 {
		return false
	}

	switch s.src[tok] {
	case '>':
		return s.at(tok-1) == '='
	case ';', ')':
		return true
	case 'h':
		return s.precedingKeyword(tok, "catch")
	case 'y':
		return s.precedingKeyword(tok, "finally")
	case 'e':
		return s.precedingKeyword(tok, "else")
	}

	return false
}

func isBrOrWs(ch byte) bool {
	return ch > 8 && ch < 14 || ch == ' '
}

func isBrOrWsOrPunctuatorNotDot(ch byte) bool {
	return isBrOrWs(ch) || isPunctuator(ch) && ch != '.'
}

func isQuote(ch byte) bool {
	return ch == '\'' || ch == '"' || ch == '`'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || isDigit(ch) || ch == '_' || ch == '$' || ch >= 0x80
}

// isPunctuator matches the 23 punctuator endings !%&()*+,-./:;<=>?[]^{}|~.
func isPunctuator(ch byte) bool {
	return ch == '!' || ch == '%' || ch == '&' ||
		ch > 39 && ch < 48 || ch > 57 && ch < 64 ||
		ch == '[' || ch == ']' || ch == '^' ||
		ch > 122 && ch < 127
}

// isExpressionPunctuator matches punctuators after which an expression
// starts: !%&(*+,-.:;<=>?[^{|~.
func isExpressionPunctuator(ch byte) bool {
	return ch == '!' || ch == '%' || ch == '&' ||
		ch > 39 && ch < 47 && ch != ')' || ch > 57 && ch < 64 ||
		ch == '[' || ch == '^' ||
		ch > 122 && ch < 127 && ch != '}'
}
