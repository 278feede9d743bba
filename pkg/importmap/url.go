package importmap

import (
	"net/url"
	"strings"
)

// ResolveIfNotPlainOrURL joins a relative, root-relative or
// protocol-relative reference onto parent. It reports false for bare
// specifiers and absolute URLs, which are left to the map. The query and
// fragment of parent are ignored, and backslashes count as slashes. A
// parent without a scheme resolves nothing.
func ResolveIfNotPlainOrURL(rel, parent string) (string, bool) {
	if i := strings.IndexAny(parent, "?#"); i != -1 {
		parent = parent[:i]
	}

	rel = strings.ReplaceAll(rel, `\`, "/")

	protocol := parent[:schemeLen(parent)]
	if protocol == "" {
		return "", false
	}

	if strings.HasPrefix(rel, "//") {
		return protocol + rel, true
	}

	if !isRelative(rel) {
		return "", false
	}

	if rel == "." || rel == ".." {
		rel += "/"
	}

	if protocol == "blob:" || protocol == "data:" {
		return "", false
	}

	if rest := parent[len(protocol):]; protocol != "file:" && strings.HasPrefix(rest, "//") && !strings.Contains(rest[2:], "/") {
		parent += "/"
	}

	pathname := parentPathname(parent, protocol)

	if rel[0] == '/' {
		origin := strings.TrimSuffix(parent[:len(parent)-len(pathname)], "/")

		return origin + rel, true
	}

	segmented := pathname[:strings.LastIndexByte(pathname, '/')+1] + rel

	return parent[:len(parent)-len(pathname)] + collapseSegments(segmented), true
}

// schemeLen returns the length of the "scheme:" prefix of s, or 0 when s
// does not start with one.
func schemeLen(s string) int {
	for i := range len(s) {
		c := s[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		case i > 0 && c == ':':
			return i + 1
		default:
			return 0
		}
	}

	return 0
}

func isRelative(rel string) bool {
	switch {
	case rel == "":
		return false
	case rel[0] == '/':
		return true
	case rel == "." || rel == ".." || strings.HasPrefix(rel, "./") || strings.HasPrefix(rel, "../"):
		return true
	}

	return false
}

// parentPathname returns the path of parent without its leading slash.
func parentPathname(parent, protocol string) string {
	rest := parent[len(protocol):]

	if strings.HasPrefix(rest, "//") {
		if protocol == "file:" {
			return strings.TrimPrefix(rest[2:], "/")
		}

		authority := rest[2:]
		if i := strings.IndexByte(authority, '/'); i != -1 {
			return authority[i+1:]
		}

		return ""
	}

	return strings.TrimPrefix(rest, "/")
}

// collapseSegments drops "." and ".." segments in a single left to right
// pass, popping the output on each "..".
func collapseSegments(segmented string) string {
	output := make([]string, 0, strings.Count(segmented, "/")+1)
	segmentStart := -1

	for i := 0; i < len(segmented); i++ {
		if segmentStart != -1 {
			if segmented[i] == '/' {
				output = append(output, segmented[segmentStart:i+1])
				segmentStart = -1
			}

			continue
		}

		if segmented[i] == '.' {
			if i+1 < len(segmented) && segmented[i+1] == '.' && (i+2 == len(segmented) || segmented[i+2] == '/') {
				if len(output) > 0 {
					output = output[:len(output)-1]
				}

				i += 2

				continue
			}

			if i+1 == len(segmented) || segmented[i+1] == '/' {
				i++

				continue
			}
		}

		for i < len(segmented) && segmented[i] == '/' {
			i++
		}

		segmentStart = i
	}

	if segmentStart != -1 {
		output = append(output, segmented[segmentStart:])
	}

	return strings.Join(output, "")
}

// IsURL reports whether s parses as an absolute URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)

	return err == nil && u.Scheme != ""
}

// ResolveURL resolves rel against parent, treating a non-URL bare value as
// a path relative to parent.
func ResolveURL(rel, parent string) string {
	if resolved, ok := ResolveIfNotPlainOrURL(rel, parent); ok {
		return resolved
	}

	if IsURL(rel) {
		return rel
	}

	resolved, _ := ResolveIfNotPlainOrURL("./"+rel, parent)

	return resolved
}
