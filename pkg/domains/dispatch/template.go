package dispatch

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes every {{field}} placeholder with the contact's matching
// field. Placeholders with no matching field are left verbatim.
func Render(template string, fields map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := fields[key]; ok {
			return v
		}
		return m
	})
}
