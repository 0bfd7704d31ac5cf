package tables

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold normalises text for matching: NFC composition, Unicode case folding
// and whitespace collapsed to single spaces. Labels, keywords and biographies
// all pass through Fold so that "Ölmalerei", "ÖLMALEREI" and "ölmalerei"
// compare equal.
func Fold(s string) string {
	// A Caser carries state and must not be shared between goroutines.
	folded := cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}
