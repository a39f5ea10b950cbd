package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining marks ("Jiří" -> "Jiri").
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// nameKey folds a person name so that "Jiří Novák", "jiri_novak" and
// "JIRI-NOVAK" share a key. Folder names keep their original spelling;
// the key only detects reference names that would be confusing side by side.
func nameKey(name string) string {
	name = cases.Fold().String(stripMarks(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
