// Audience redaction: strips marked markdown regions below the requested
// audience level.

package docs

import (
	"regexp"
	"strings"
)

// Audience regions are delimited by HTML comment markers:
//
//	<!-- audience:internal:start -->
//	...
//	<!-- audience:internal:end -->
//
// A start marker with no matching end strips to the end of the document:
// failing safe means over-redacting, never leaking.
var audienceMarkerRe = regexp.MustCompile(`^\s*<!--\s*audience:(internal|private):(start|end)\s*-->\s*$`)

// Redact returns the markdown visible to the given audience. Marker lines
// never appear in the output, which makes the transform idempotent. A start
// marker inside an already-open region is a no-op; an end marker with no open
// region is dropped.
func Redact(markdown string, aud Audience) string {
	rank := audienceRank(aud)
	lines := strings.Split(markdown, "\n")
	kept := make([]string, 0, len(lines))
	active := "" // "", "internal" or "private"
	for _, line := range lines {
		if m := audienceMarkerRe.FindStringSubmatch(line); m != nil {
			level, kind := m[1], m[2]
			switch {
			case kind == "start" && active == "":
				active = level
			case kind == "end" && active == level:
				active = ""
			}
			// Nested starts and stray ends fall through as no-ops.
			continue
		}
		if active == "" || rank >= audienceRank(Audience(active)) {
			kept = append(kept, line)
		}
	}
	out := strings.Join(kept, "\n")
	if strings.TrimSpace(out) == "" {
		return "\n"
	}
	return NormalizeMarkdown(out)
}
