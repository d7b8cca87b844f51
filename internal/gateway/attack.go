package gateway

import "regexp"

// Attack heuristics. These produce warnings, not hard blocks; the
// coordinator decides whether a warning is fatal for the request type.
var attackPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{
		name: "sql_injection",
		re: regexp.MustCompile(`(?i)('\s*(or|and)\s+'?[\w]*'?\s*=)|` +
			`(\bunion\s+(all\s+)?select\b)|` +
			`(;\s*(drop|delete|insert|update|truncate)\b)|` +
			`(\bexec\s*\()|(--\s)|(/\*.*\*/)`),
	},
	{
		name: "cross_site_scripting",
		re: regexp.MustCompile(`(?i)(<script\b)|(</script>)|(javascript\s*:)|` +
			`(\bon(error|load|click|mouseover|focus)\s*=)|(<iframe\b)|(<object\b)|(<embed\b)`),
	},
	{
		name: "path_traversal",
		re:   regexp.MustCompile(`(?i)(\.\./)|(\.\.\\)|(%2e%2e%2f)|(%2e%2e/)|(\.\.%2f)|(%252e%252e)`),
	},
	{
		name: "command_injection",
		re: regexp.MustCompile(`(?i)([;|&]\s*(cat|ls|rm|wget|curl|bash|sh|nc|chmod|chown|python|perl)\b)|` +
			"(\\$\\([^)]*\\))|(`[^`]*`)|(&&\\s*\\w)|(\\|\\|\\s*\\w)"),
	},
}

// detectAttacks scans every string value in payload and returns one
// warning per (field, pattern) match.
func detectAttacks(payload map[string]any) []string {
	var warnings []string
	for field, value := range payload {
		str, ok := value.(string)
		if !ok {
			continue
		}
		for _, p := range attackPatterns {
			if p.re.MatchString(str) {
				warnings = append(warnings, p.name+" suspected in field "+field)
			}
		}
	}
	return warnings
}
