// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"regexp"
	"strings"
)

var (
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	bracketPattern  = regexp.MustCompile(`\[(.*?)\]`)
	breakRunPattern = regexp.MustCompile(`(<br>\s*){2,}`)
	emPattern       = regexp.MustCompile(`\*(.*?)\*`)
)

// FormatAnswer converts the model's markdown-flavored answer text into the
// HTML fragment the UI renders. Transformations apply in a fixed order:
// bold spans first, then bracketed spans are kept as-is, then every
// remaining asterisk and newline becomes a line break, runs of breaks
// collapse to one, and finally single-asterisk spans become emphasis.
// The emphasis pass only matters for input where asterisks were consumed
// as bold markers; lone asterisks are already line breaks by then.
func FormatAnswer(text string) string {
	out := boldPattern.ReplaceAllString(text, "<b>$1</b>")
	out = bracketPattern.ReplaceAllString(out, "[$1]")
	out = strings.ReplaceAll(out, "*", "<br>")
	out = strings.ReplaceAll(out, "\n", "<br>")
	out = breakRunPattern.ReplaceAllString(out, "<br>")
	out = emPattern.ReplaceAllString(out, "<em>$1</em>")
	return out
}
