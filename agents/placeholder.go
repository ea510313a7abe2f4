package agents

import (
	"regexp"
	"strings"
)

var (
	codePlaceholder  = regexp.MustCompile(`\[CODE:\s*(\w+)\s*-\s*([^\]]+)\]`)
	imagePlaceholder = regexp.MustCompile(`\[IMAGE:\s*(\w+)\s*-\s*([^\]]+)\]`)
)

const placeholderContext = 1000

// placeholder is one [CODE: ...] or [IMAGE: ...] marker found in prose.
// Key is the code id or the image type.
type placeholder struct {
	Text        string
	Key         string
	Description string
	Start       int
	End         int
}

func findPlaceholders(re *regexp.Regexp, content string) []placeholder {
	var out []placeholder
	for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
		out = append(out, placeholder{
			Text:        content[m[0]:m[1]],
			Key:         content[m[2]:m[3]],
			Description: strings.TrimSpace(content[m[4]:m[5]]),
			Start:       m[0],
			End:         m[1],
		})
	}
	return out
}

// surrounding returns up to placeholderContext bytes either side of p.
func (p placeholder) surrounding(content string) string {
	start := max(0, p.Start-placeholderContext)
	end := min(len(content), p.End+placeholderContext)
	return strings.ToValidUTF8(content[start:end], "")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
