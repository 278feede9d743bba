package importmap

import (
	"log/slog"
	"maps"
	"slices"
)

// ComposeOptions controls Compose.
type ComposeOptions struct {
	// Override lets a document replace existing mappings with different targets.
	Override bool
	// Logger receives warnings about targets that do not resolve.
	Logger *slog.Logger
}

// Compose returns base extended with the mappings of doc. Keys and targets
// are normalized against atURL and targets are then resolved through base,
// so a document may map onto specifiers base already knows. Base is never
// modified.
//
// Re-mapping a key to the same target is a no-op. Mapping it to a
// different target fails with *MapOverrideConflictError unless
// opts.Override is set.
func Compose(base *ImportMap, doc *Document, atURL string, opts ComposeOptions) (*ImportMap, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := base.Clone()
	if doc == nil {
		return out, nil
	}

	c := composer{base: base, atURL: atURL, override: opts.Override, logger: logger}

	err := c.packages(out.Imports, "", doc.Imports)
	if err != nil {
		return nil, err
	}

	for _, scope := range slices.Sorted(maps.Keys(doc.Scopes)) {
		resolvedScope := ResolveURL(scope, atURL)

		pkgs, ok := out.Scopes[resolvedScope]
		if !ok {
			pkgs = Packages{}
			out.Scopes[resolvedScope] = pkgs
		}

		err = c.packages(pkgs, resolvedScope, doc.Scopes[scope])
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

type composer struct {
	base     *ImportMap
	atURL    string
	override bool
	logger   *slog.Logger
}

func (c *composer) packages(out Packages, scope string, in map[string]Spec) error {
	for _, key := range slices.Sorted(maps.Keys(in)) {
		spec := in[key]

		lhs, ok := ResolveIfNotPlainOrURL(key, c.atURL)
		if !ok {
			lhs = key
		}

		target, ok := c.target(spec)
		if !ok {
			c.logger.Warn("import map target does not resolve",
				"specifier", key, "targets", spec.Fallbacks, "scope", scope)

			continue
		}

		if existing, exists := out[lhs]; exists && existing != target && !c.override {
			return &MapOverrideConflictError{Key: lhs, Scope: scope, From: existing, To: target}
		}

		out[lhs] = target
	}

	return nil
}

// target picks the first fallback that resolves through the base map.
func (c *composer) target(spec Spec) (Target, bool) {
	if spec.Blocked {
		return Blocked, true
	}

	for _, candidate := range spec.Fallbacks {
		normalized, ok := ResolveIfNotPlainOrURL(candidate, c.atURL)
		if !ok {
			normalized = candidate
		}

		resolved, found, blocked := c.base.lookup(normalized, c.atURL)
		if found {
			return URL(resolved), true
		}

		if !blocked && IsURL(normalized) {
			return URL(normalized), true
		}
	}

	return Target{}, false
}
