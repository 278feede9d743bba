package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/modshim/pkg/fetch"
	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
	"github.com/Sumatoshi-tech/modshim/pkg/rewrite"
)

// Kind is the module kind derived from a response media type.
type Kind string

// Module kinds.
const (
	KindJavaScript Kind = "js"
	KindJSON       Kind = "json"
	KindCSS        Kind = "css"
)

var javaScriptTypes = map[string]bool{
	fetch.MIMEJavaScript:       true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/ecmascript":   true,
	"text/ecmascript":          true,
	"text/jsx":                 true,
}

// cssURL matches url() references in a stylesheet.
var cssURL = regexp.MustCompile(`url\(\s*(?:(["'])((?:\\.|[^\n\\"'])+)["']|((?:\\.|[^\s,"'()\\])+))\s*\)`)

// KindOf maps a media type to a module kind.
func KindOf(mediaType string) (Kind, error) {
	switch {
	case javaScriptTypes[mediaType]:
		return KindJavaScript, nil
	case mediaType == fetch.MIMEJSON || strings.HasSuffix(mediaType, "+json"):
		return KindJSON, nil
	case mediaType == fetch.MIMECSS:
		return KindCSS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMIME, mediaType)
	}
}

// moduleSource turns a response body into JavaScript module source.
func moduleSource(kind Kind, body []byte, responseURL string) (string, error) {
	switch kind {
	case KindJSON:
		if !json.Valid(body) {
			return "", fmt.Errorf("%w: invalid JSON module", lexer.ErrSyntax)
		}

		return "export default " + strings.TrimSpace(string(body)) + ";", nil
	case KindCSS:
		css := cssURL.ReplaceAllStringFunc(string(body), func(match string) string {
			groups := cssURL.FindStringSubmatch(match)
			quote, ref := groups[1], groups[2]

			if ref == "" {
				ref = groups[3]
			}

			return "url(" + quote + importmap.ResolveURL(ref, responseURL) + quote + ")"
		})

		return "let s=new CSSStyleSheet();s.replaceSync(" + rewrite.JSString(css) + ");export default s;", nil
	default:
		return string(body), nil
	}
}
