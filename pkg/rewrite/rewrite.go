// Package rewrite turns analyzed module source into its executable form and
// synthesizes the shell modules that stand in for modules caught in a
// cycle.
package rewrite

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/modshim/pkg/importmap"
	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
)

// Loader is the global the host binds to the registry's dynamic loader.
const Loader = "importShim"

const (
	sourceURLPrefix = "\n//# sourceURL="
	cycleSuffix     = "?cycle"
	updateExport    = "u$_"
)

// sourceAnnotation matches one sourceURL or sourceMappingURL comment line.
var sourceAnnotation = regexp.MustCompile(`^//# source(Mapping)?URL=(\S+)[ \t\r]*$`)

// Target is the replacement for one static import.
type Target struct {
	// Handle replaces the quoted specifier.
	Handle string
	// Link is appended after the specifier. It carries a ShellLink snippet
	// when the dependency finalized while a shell for it was pending.
	Link string
}

// Input is everything Rewrite needs for one module.
type Input struct {
	Source   string
	Analysis *lexer.Analysis
	// URL keys the module metadata record.
	URL string
	// ResponseURL is the base for dynamic imports and debug annotations.
	ResponseURL string
	// Targets holds one entry per static occurrence, in source order.
	Targets []Target
}

// Rewrite produces the executable form of in.Source. Static specifiers
// become their targets, import.meta becomes a lookup into the loader's
// metadata records and dynamic import calls are routed through Loader with
// the module URL appended as a trailing argument. The text between
// occurrences is copied verbatim.
func Rewrite(in Input) string {
	var (
		out     strings.Builder
		last    int
		static  int
		pending []int
	)

	src := in.Source
	base := JSString(in.ResponseURL)
	out.Grow(len(src) + len(src)/4)

	// copyTo copies source up to pos, closing any dynamic import calls
	// whose argument list ends first.
	copyTo := func(pos int) {
		for len(pending) > 0 && pending[len(pending)-1] < pos {
			end := pending[len(pending)-1]
			pending = pending[:len(pending)-1]

			out.WriteString(src[last:end])
			out.WriteString(", ")
			out.WriteString(base)
			last = end
		}

		out.WriteString(src[last:pos])
		last = pos
	}

	if in.Analysis != nil {
		for _, occ := range in.Analysis.Imports {
			switch {
			case occ.IsStatic():
				if static >= len(in.Targets) {
					continue
				}

				target := in.Targets[static]
				static++

				copyTo(occ.Start - 1)
				out.WriteString("/*")
				out.WriteString(strings.ReplaceAll(src[occ.Start-1:occ.End+1], "*/", `*\/`))
				out.WriteString("*/")
				out.WriteString(JSString(target.Handle))
				out.WriteString(target.Link)
				last = occ.End + 1
			case occ.IsMeta():
				copyTo(occ.Start)
				out.WriteString(MetaReference(in.URL))
				last = occ.End
			default:
				copyTo(occ.Start + len("import"))
				out.WriteString("Shim(")
				last = occ.End

				if occ.ArgEnd > occ.Start {
					pending = append(pending, occ.ArgEnd)
				}
			}
		}
	}

	copyTo(len(src))

	return annotate(out.String(), in.ResponseURL)
}

// MetaReference is the expression that replaces import.meta for url.
func MetaReference(url string) string {
	return Loader + "._r[" + JSString(url) + "].m"
}

// annotate makes the source annotations closing the module absolute and
// appends a sourceURL comment when they include none. Annotation lines
// followed by other code are left alone.
func annotate(code, responseURL string) string {
	hasSourceURL := false

	for end := len(code); end > 0; {
		start := strings.LastIndexByte(code[:end], '\n') + 1
		line := code[start:end]

		if strings.TrimSpace(line) != "" {
			m := sourceAnnotation.FindStringSubmatchIndex(line)
			if m == nil {
				break
			}

			if m[2] == -1 {
				hasSourceURL = true
			}

			value := line[m[4]:m[5]]
			if abs := importmap.ResolveURL(value, responseURL); abs != "" {
				value = abs
			}

			code = code[:start] + line[:m[4]] + value + line[m[5]:] + code[end:]
		}

		end = start - 1
	}

	if !hasSourceURL {
		code += sourceURLPrefix + responseURL
	}

	return code
}

// Shell synthesizes the placeholder for a module caught in a cycle. It
// declares one mutable binding per export name, exported under that name,
// and exports an update function that copies the bindings from the real
// module namespace.
func Shell(exports []string, url string) string {
	names := dedupe(exports)

	var b strings.Builder

	b.WriteString("export function " + updateExport + "(m){")

	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(local(i) + "=m" + member(name))
	}

	b.WriteString("}")

	if len(names) > 0 {
		b.WriteString("let ")

		for i := range names {
			if i > 0 {
				b.WriteByte(',')
			}

			b.WriteString(local(i))
		}

		b.WriteString(";")
	}

	b.WriteString("export {")

	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}

		b.WriteString(local(i) + " as " + exportName(name))
	}

	b.WriteString("}")
	b.WriteString(sourceURLPrefix + url + cycleSuffix)

	return b.String()
}

// ShellLink is appended after the import of a real module whose shell is
// still pending. It imports the real namespace and feeds it to the shell's
// update function; i keeps the local names of several links apart.
func ShellLink(i int, real, shell string) string {
	n := strconv.Itoa(i)

	return ";import*as m$_" + n + " from" + JSString(real) +
		";import{" + updateExport + " as u$_" + n + "}from" + JSString(shell) +
		";u$_" + n + "(m$_" + n + ")"
}

// JSString quotes s as a JavaScript string literal.
func JSString(s string) string {
	var b strings.Builder

	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	return strings.TrimSuffix(b.String(), "\n")
}

func local(i int) string { return "e$_" + strconv.Itoa(i) }

func member(name string) string {
	if isIdentifier(name) {
		return "." + name
	}

	return "[" + JSString(name) + "]"
}

func exportName(name string) string {
	if isIdentifier(name) {
		return name
	}

	return JSString(name)
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}

	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch == '_' || ch == '$' || ch >= 0x80:
		case ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		out = append(out, name)
	}

	return out
}
