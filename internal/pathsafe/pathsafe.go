// Package pathsafe maps site, project and artifact names to filesystem-safe path segments.
package pathsafe

import "strings"

// Forbidden lists the characters that cannot appear in a path segment on common
// filesystems. They are deleted, not substituted.
const Forbidden = `\/*?:"<>|`

var stripper = strings.NewReplacer(
	`\`, "",
	"/", "",
	"*", "",
	"?", "",
	":", "",
	`"`, "",
	"<", "",
	">", "",
	"|", "",
)

// Sanitize removes every forbidden character from name. It never fails; an input
// made only of forbidden characters yields the empty string.
func Sanitize(name string) string {
	if !strings.ContainsAny(name, Forbidden) {
		return name
	}
	return stripper.Replace(name)
}
