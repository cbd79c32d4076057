package fs

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

/*
	A line diff of the files at two paths (typically the same internal
	path under two roots), one line per output line, each prefixed with
	"-", "+", or " ".

	Either side may be on a different root, or come from a filtered view;
	both are read with ReadBytes semantics.
*/
func TextDiff(v View, a, b Path) (string, error) {
	before, err := v.ReadBytes(a)
	if err != nil {
		return "", err
	}
	after, err := v.ReadBytes(b)
	if err != nil {
		return "", err
	}
	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		default:
			prefix = " "
		}
		for _, line := range splitLines(d.Text) {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

/*
	Split text into lines without their terminators.
	A missing final newline doesn't produce an extra empty line.
*/
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
