package report

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStat counts the lines that changed between two versions of a module.
type DiffStat struct {
	Added     int `json:"added"     yaml:"added"`
	Removed   int `json:"removed"   yaml:"removed"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// Changed reports whether any line was added or removed.
func (d DiffStat) Changed() bool { return d.Added > 0 || d.Removed > 0 }

func (d DiffStat) String() string {
	return fmt.Sprintf("+%d -%d", d.Added, d.Removed)
}

// Diff compares old and updated line by line.
func Diff(old, updated string) DiffStat {
	if old == updated {
		return DiffStat{Unchanged: lineCount(old)}
	}

	dmp := diffmatchpatch.New()
	src, dst, _ := dmp.DiffLinesToRunes(old, updated)
	diffs := dmp.DiffMainRunes(src, dst, false)

	var stat DiffStat

	for _, d := range diffs {
		// After DiffLinesToRunes every rune stands for one line.
		n := utf8.RuneCountInString(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stat.Added += n
		case diffmatchpatch.DiffDelete:
			stat.Removed += n
		case diffmatchpatch.DiffEqual:
			stat.Unchanged += n
		}
	}

	return stat
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}

	n := strings.Count(s, "\n")
	if s[len(s)-1] != '\n' {
		n++
	}

	return n
}
