package analysis

import "regexp"

// securityRule pairs a vulnerability pattern with its scanner severity.
// The table is deliberately small and conservative: each pattern has a low
// false-positive rate in the languages the analyzer scans.
type securityRule struct {
	vulnType    string
	severity    string
	description string
	pattern     *regexp.Regexp
}

var securityRules = []securityRule{
	{
		vulnType:    "hardcoded_credential",
		severity:    "HIGH",
		description: "credential literal assigned in source",
		pattern:     regexp.MustCompile(`(?i)(password|passwd|secret|api_key|apikey)\s*[:=]\s*["'][^"']{4,}["']`),
	},
	{
		vulnType:    "command_injection",
		severity:    "HIGH",
		description: "shell command built from program input",
		pattern:     regexp.MustCompile(`os\.system\(|subprocess\.call\([^)]*shell=True`),
	},
	{
		vulnType:    "code_injection",
		severity:    "HIGH",
		description: "dynamic code evaluation",
		pattern:     regexp.MustCompile(`\beval\(|\bexec\(`),
	},
	{
		vulnType:    "sql_injection",
		severity:    "HIGH",
		description: "SQL statement built by string concatenation",
		pattern:     regexp.MustCompile(`(?i)["'](SELECT|INSERT|UPDATE|DELETE)\b[^"']*["']\s*\+`),
	},
	{
		vulnType:    "insecure_deserialization",
		severity:    "HIGH",
		description: "deserialization of untrusted data",
		pattern:     regexp.MustCompile(`pickle\.loads?\(|yaml\.load\((?:[^)]*Loader=yaml\.Loader|[^),]*\))`),
	},
	{
		vulnType:    "tls_verification_disabled",
		severity:    "HIGH",
		description: "TLS certificate verification disabled",
		pattern:     regexp.MustCompile(`InsecureSkipVerify:\s*true|verify\s*=\s*False`),
	},
	{
		vulnType:    "weak_hash",
		severity:    "MEDIUM",
		description: "weak hash algorithm",
		pattern:     regexp.MustCompile(`\bmd5\s*\(|crypto/md5|hashlib\.md5|\bsha1\s*\(|crypto/sha1`),
	},
	{
		vulnType:    "insecure_transport",
		severity:    "LOW",
		description: "plaintext HTTP URL",
		pattern:     regexp.MustCompile(`["']http://(?:[^"']*)["']`),
	},
}

// scanSecurity applies the rule table line by line. Localhost URLs are
// exempt from the insecure transport rule.
func scanSecurity(path string, lines []string) []SecurityIssue {
	var issues []SecurityIssue
	for i, line := range lines {
		for _, rule := range securityRules {
			if !rule.pattern.MatchString(line) {
				continue
			}
			if rule.vulnType == "insecure_transport" && isLocalURL(line) {
				continue
			}
			issues = append(issues, SecurityIssue{
				VulnerabilityType: rule.vulnType,
				Description:       rule.description,
				Severity:          rule.severity,
				FilePath:          path,
				LineNumber:        i + 1,
			})
		}
	}
	return issues
}

var localURLPattern = regexp.MustCompile(`http://(localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\])`)

func isLocalURL(line string) bool {
	return localURLPattern.MatchString(line)
}
