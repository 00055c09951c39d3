package mcp

import (
	"fmt"
	"strings"

	"github.com/wwaihoe/TailorED/internal/search"
)

// FormatSearchResult renders a result as markdown for the tool's text
// content.
func FormatSearchResult(query string, res *search.Result) string {
	var sb strings.Builder
	if res == nil || len(res.Passages) == 0 {
		fmt.Fprintf(&sb, "No passages found for %q.\n", query)
		return sb.String()
	}

	fmt.Fprintf(&sb, "## Results for %q\n\n", query)
	for i, p := range res.Passages {
		if i < len(res.Scores) {
			fmt.Fprintf(&sb, "### %d. (score %.3f)\n\n", i+1, res.Scores[i])
		} else {
			fmt.Fprintf(&sb, "### %d.\n\n", i+1)
		}
		sb.WriteString(strings.TrimSpace(p))
		sb.WriteString("\n\n")
	}

	if len(res.Filenames) > 0 {
		sb.WriteString("**Files:** ")
		sb.WriteString(strings.Join(res.Filenames, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}
