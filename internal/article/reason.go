package article

import (
	"encoding/json"
	"sort"
	"strings"
)

// Reasons is a reviewer justification. Single-rater stores hold free text;
// merged stores hold a JSON object of rater name to reason.
type Reasons map[string]string

// ParseReasons decodes a title_reason or content_reason value. Free text is
// returned under the empty rater name.
func ParseReasons(s string) Reasons {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reasons{}
	}
	if strings.HasPrefix(s, "{") {
		var m map[string]string
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return Reasons(m)
		}
	}
	return Reasons{"": s}
}

// Merge files each rater's reason under its name. A free-text reason is
// attributed to the rater whose store holds it; reasons already keyed by
// rater keep their key. The first reason seen for a rater wins.
func Merge(byRater map[string]string, order []string) Reasons {
	out := Reasons{}
	for _, rater := range order {
		for name, reason := range ParseReasons(byRater[rater]) {
			if name == "" {
				name = rater
			}
			if _, ok := out[name]; !ok {
				out[name] = reason
			}
		}
	}
	return out
}

// Raters returns the rater names in sorted order.
func (r Reasons) Raters() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Flatten renders the reasons one per line as "rater: reason".
func (r Reasons) Flatten() string {
	var lines []string
	for _, name := range r.Raters() {
		if name == "" {
			lines = append(lines, r[name])
			continue
		}
		lines = append(lines, name+": "+r[name])
	}
	return strings.Join(lines, "\n")
}

// Encode returns the stored form: plain text for a single unnamed reason,
// JSON otherwise.
func (r Reasons) Encode() string {
	if len(r) == 0 {
		return ""
	}
	if v, ok := r[""]; ok && len(r) == 1 {
		return v
	}
	b, _ := json.Marshal(map[string]string(r))
	return string(b)
}
