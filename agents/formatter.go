package agents

import (
	"regexp"
	"strings"
)

var (
	separatorGlued  = regexp.MustCompile(`(?m)^(---+)([^-\s])`)
	separatorAlone  = regexp.MustCompile(`(?m)^(---+)$`)
	extraBlankLines = regexp.MustCompile(`\n{4,}`)
	headingBefore   = regexp.MustCompile(`([^\n])\n(#{1,6}\s)`)
	headingAfter    = regexp.MustCompile(`(#{1,6}\s[^\n]+)\n([^\n\s])`)
)

// FormatMarkdown normalizes generated markdown: separators get blank lines
// around them, runs of blank lines are capped at two, headings are set off
// by blank lines and the text ends with exactly one newline. Table rules
// such as |---| are left alone because only separators at the start of a
// line are touched.
func FormatMarkdown(md string) string {
	md = separatorGlued.ReplaceAllString(md, "$1\n\n$2")
	md = separatorAlone.ReplaceAllString(md, "\n$1\n")
	md = extraBlankLines.ReplaceAllString(md, "\n\n\n")
	md = headingBefore.ReplaceAllString(md, "$1\n\n$2")
	md = headingAfter.ReplaceAllString(md, "$1\n\n$2")
	return strings.TrimRight(md, " \t\r\n") + "\n"
}
