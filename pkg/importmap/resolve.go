package importmap

import "strings"

// Resolve maps specifier, imported from parentURL, to a URL through m.
//
// URL-like specifiers are first joined onto parentURL. Scopes matching
// parentURL are consulted from the most specific one outwards, then the
// top-level imports. A URL-like specifier no mapping covers resolves to its
// joined form; anything else fails with *UnresolvedSpecifierError.
func Resolve(specifier, parentURL string, m *ImportMap) (string, error) {
	target, urlLike := ResolveIfNotPlainOrURL(specifier, parentURL)
	if !urlLike {
		target = specifier
		urlLike = IsURL(specifier)
	}

	resolved, found, blocked := m.lookup(target, parentURL)

	switch {
	case blocked:
		return "", &UnresolvedSpecifierError{Specifier: specifier, Parent: parentURL, Blocked: true}
	case found:
		return resolved, nil
	case urlLike:
		return target, nil
	}

	return "", &UnresolvedSpecifierError{Specifier: specifier, Parent: parentURL}
}

// lookup applies the scopes for parentURL and then the top-level imports to
// an already normalized target.
func (m *ImportMap) lookup(target, parentURL string) (resolved string, found, blocked bool) {
	if m == nil {
		return "", false, false
	}

	if parentURL != "" {
		scope, ok := match(parentURL, m.Scopes)
		for ok {
			resolved, found, blocked = applyPackages(target, m.Scopes[scope])
			if found || blocked {
				return resolved, found, blocked
			}

			if scope == "" {
				break
			}

			scope, ok = match(scope[:len(scope)-1], m.Scopes)
		}
	}

	return applyPackages(target, m.Imports)
}

func applyPackages(target string, pkgs Packages) (resolved string, found, blocked bool) {
	key, ok := match(target, pkgs)
	if !ok {
		return "", false, false
	}

	value := pkgs[key]
	if value.Blocked {
		return "", false, true
	}

	return value.URL + target[len(key):], true, false
}

// match finds the longest key of m that equals path or is a prefix of path
// ending at a slash.
func match[V any](path string, m map[string]V) (string, bool) {
	if len(m) == 0 {
		return "", false
	}

	if _, ok := m[path]; ok {
		return path, true
	}

	for sep := strings.LastIndexByte(path, '/'); sep != -1; sep = strings.LastIndexByte(path[:sep], '/') {
		if _, ok := m[path[:sep+1]]; ok {
			return path[:sep+1], true
		}
	}

	return "", false
}
