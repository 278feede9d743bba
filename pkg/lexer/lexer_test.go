package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/modshim/pkg/lexer"
)

func scan(t *testing.T, src string) *lexer.Analysis {
	t.Helper()

	analysis, err := lexer.Scan(src)
	require.NoError(t, err)

	return analysis
}

func staticSpecifiers(src string, analysis *lexer.Analysis) []string {
	return analysis.StaticSpecifiers(src)
}

func TestScan_StaticImportAndDefaultExport(t *testing.T) {
	t.Parallel()

	src := `import x from "m"; export default 1;`
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 1)
	assert.Equal(t, lexer.Occurrence{Start: 15, End: 16, Kind: lexer.KindStatic}, analysis.Imports[0])
	assert.Equal(t, "m", src[analysis.Imports[0].Start:analysis.Imports[0].End])
	assert.Equal(t, []string{"default"}, analysis.Exports)
}

func TestScan_ImportForms(t *testing.T) {
	t.Parallel()

	src := `import 'side-effect';
import def from "./def.js";
import * as ns from './ns.js';
import { a, b as c } from "pkg/sub";
import def2, { d } from 'mixed';
`
	analysis := scan(t, src)

	assert.Equal(t,
		[]string{"side-effect", "./def.js", "./ns.js", "pkg/sub", "mixed"},
		staticSpecifiers(src, analysis))
	assert.Empty(t, analysis.Exports)
}

func TestScan_DynamicImport(t *testing.T) {
	t.Parallel()

	src := `import('./x.js')`
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 1)

	occ := analysis.Imports[0]
	assert.True(t, occ.IsDynamic())
	assert.Equal(t, lexer.Occurrence{Start: 0, End: 7, Kind: 7, ArgEnd: 15}, occ)
	assert.Equal(t, "'./x.js'", analysis.Specifier(src, occ))
}

func TestScan_DynamicImportExpressionArgument(t *testing.T) {
	t.Parallel()

	src := `async function load(name) { return import(base + name + ".js"); }`
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 1)
	assert.Equal(t, `base + name + ".js"`, analysis.Specifier(src, analysis.Imports[0]))
}

func TestScan_MemberImportIsNotDynamic(t *testing.T) {
	t.Parallel()

	analysis := scan(t, `loader.import('x'); obj.import.meta;`)

	assert.Empty(t, analysis.Imports)
}

func TestScan_ImportMeta(t *testing.T) {
	t.Parallel()

	src := `const u = import.meta.url;`
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 1)
	assert.Equal(t, lexer.Occurrence{Start: 10, End: 21, Kind: lexer.KindMeta}, analysis.Imports[0])
	assert.True(t, analysis.Imports[0].IsMeta())
}

func TestScan_NestedStaticImportIgnored(t *testing.T) {
	t.Parallel()

	analysis := scan(t, `function f() { const importer = 1; } { import "x" }`)

	assert.Empty(t, analysis.Imports)
}

func TestScan_IdentifiersStartingWithKeywords(t *testing.T) {
	t.Parallel()

	analysis := scan(t, `const important = 1; exports.x = important; reimport("x");`)

	assert.Empty(t, analysis.Imports)
	assert.Empty(t, analysis.Exports)
}

func TestScan_ExportDeclarations(t *testing.T) {
	t.Parallel()

	src := `export function f() {}
export async function g() {}
export function* gen() {}
export class Foo {}
export const one = 1;
export let a, b;
export var v = function () {}, skipped = 2;
`
	analysis := scan(t, src)

	assert.Equal(t, []string{"f", "g", "gen", "Foo", "one", "a", "b", "v"}, analysis.Exports)
	assert.Empty(t, analysis.Imports)
}

func TestScan_ExportDestructuringStopsCollection(t *testing.T) {
	t.Parallel()

	analysis := scan(t, `export const x = 1, { y } = obj;
export const { z } = obj;
export let [p, q] = arr;
`)

	assert.Equal(t, []string{"x"}, analysis.Exports)
}

func TestScan_ExportLists(t *testing.T) {
	t.Parallel()

	src := `const a = 1, b = 2;
export { a, b as c };
export {};
export { d as default, e } from './dep.js';
`
	analysis := scan(t, src)

	assert.Equal(t, []string{"a", "c", "default", "e"}, analysis.Exports)
	assert.Equal(t, []string{"./dep.js"}, staticSpecifiers(src, analysis))
}

func TestScan_WildcardReexports(t *testing.T) {
	t.Parallel()

	src := `export * from './all.js';
export * as ns from "./ns.js";
`
	analysis := scan(t, src)

	assert.Equal(t, []string{"ns"}, analysis.Exports)
	assert.Equal(t, []string{"./all.js", "./ns.js"}, staticSpecifiers(src, analysis))
}

func TestScan_DuplicateExportsPreserved(t *testing.T) {
	t.Parallel()

	analysis := scan(t, `export { a }; export { a };`)

	assert.Equal(t, []string{"a", "a"}, analysis.Exports)
}

func TestScan_CommentsAreSkipped(t *testing.T) {
	t.Parallel()

	src := `// import 'line'
/* import 'block'
   export const hidden = 1; */
import /* inline */ 'real';
`
	analysis := scan(t, src)

	assert.Equal(t, []string{"real"}, staticSpecifiers(src, analysis))
	assert.Empty(t, analysis.Exports)
}

func TestScan_StringsHideSyntax(t *testing.T) {
	t.Parallel()

	src := `const s = "import 'no'"; const q = 'export const no = 1';
import "yes";`
	analysis := scan(t, src)

	assert.Equal(t, []string{"yes"}, staticSpecifiers(src, analysis))
	assert.Empty(t, analysis.Exports)
}

func TestScan_LineContinuationInString(t *testing.T) {
	t.Parallel()

	for name, src := range map[string]string{
		"lf":   "var s = 'a\\\nb'; export const x = 1;",
		"cr":   "var s = 'a\\\rb'; export const x = 1;",
		"crlf": "var s = 'a\\\r\nb'; export const x = 1;",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, []string{"x"}, scan(t, src).Exports)
		})
	}
}

func TestScan_RegexVersusDivision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "regex after assignment", src: `const re = /"/; import "m";`},
		{name: "division after identifier", src: `const d = a / b / c; import "m";`},
		{name: "regex after if head", src: `if (x) /'/.test(y); import "m";`},
		{name: "division after call", src: `const r = f(x) / 2; import "m";`},
		{name: "regex after return", src: `function f() { return /'/g; } import "m";`},
		{name: "regex after block", src: `if (a) {} /'/.exec(b); import "m";`},
		{name: "division after object", src: `const o = {} / 2; import "m";`},
		{name: "regex with class", src: `const re = /[/"]/; import "m";`},
		{name: "division after number", src: `const n = 10 / 2 / 1; import "m";`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			analysis := scan(t, tt.src)
			assert.Equal(t, []string{"m"}, staticSpecifiers(tt.src, analysis))
		})
	}
}

func TestScan_TemplateInterpolation(t *testing.T) {
	t.Parallel()

	src := "const t = `import 'no' ${import('./x.js')} ${ {a: `nested ${1}`}.a }`;\nimport 'after';"
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 2)
	assert.True(t, analysis.Imports[0].IsDynamic())
	assert.Equal(t, "'./x.js'", analysis.Specifier(src, analysis.Imports[0]))
	assert.Equal(t, []string{"after"}, staticSpecifiers(src, analysis))
}

func TestScan_OccurrencesOrderedAndDisjoint(t *testing.T) {
	t.Parallel()

	src := `import a from './a.js';
const m = import.meta;
export { b } from './b.js';
const lazy = () => import('./c.js' + import.meta.url);
`
	analysis := scan(t, src)

	require.Len(t, analysis.Imports, 5)

	for i := 1; i < len(analysis.Imports); i++ {
		prev, cur := analysis.Imports[i-1], analysis.Imports[i]
		assert.LessOrEqual(t, prev.End, cur.Start, "occurrence %d overlaps %d", i-1, i)
	}
}

func TestScan_SyntaxErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{name: "unterminated string", src: `const s = "abc`},
		{name: "newline in string", src: "const s = 'a\nb';"},
		{name: "unterminated block comment", src: `/* never closed`},
		{name: "unterminated template", src: "const t = `abc"},
		{name: "unterminated interpolation", src: "const t = `${a"},
		{name: "unclosed brace", src: `function f() {`},
		{name: "stray paren", src: `a)`},
		{name: "stray brace", src: `}`},
		{name: "regex with newline", src: "const r = /abc\n/;"},
		{name: "import without string", src: `import x from y;`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := lexer.Scan(tt.src)
			require.ErrorIs(t, err, lexer.ErrSyntax)
		})
	}
}

func TestScan_Empty(t *testing.T) {
	t.Parallel()

	analysis := scan(t, "")

	assert.Empty(t, analysis.Imports)
	assert.Empty(t, analysis.Exports)
}
