package extraction

import (
	"fmt"
	"strings"
)

// JoinPages concatenates page texts, prefixing each with a 1-based
// "\n--- Page N ---\n" marker.
func JoinPages(pages []string) string {
	var b strings.Builder
	for i, p := range pages {
		fmt.Fprintf(&b, "\n--- Page %d ---\n", i+1)
		b.WriteString(p)
	}
	return b.String()
}
