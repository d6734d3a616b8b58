package redact

// DefaultRules returns the built-in detection rules. Based on common
// secret patterns from gitleaks and industry standards; the set only
// contains patterns whose prefixes are self-identifying or whose false
// positive rate is low enough for unconditional leaf replacement.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`,
			Class:       ClassCredential,
		},
		{
			ID:          "github-token",
			Description: "GitHub Personal Access Token",
			Pattern:     `gh[pousr]_[A-Za-z0-9]{36}`,
			Class:       ClassToken,
		},
		{
			ID:          "github-fine-grained",
			Description: "GitHub Fine-grained Personal Access Token",
			Pattern:     `github_pat_[A-Za-z0-9_]{22,}`,
			Class:       ClassToken,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab Personal Access Token",
			Pattern:     `glpat-[A-Za-z0-9\-]{20,}`,
			Class:       ClassToken,
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Class:       ClassToken,
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|pk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Class:       ClassSecret,
		},
		{
			ID:          "openai-api-key",
			Description: "OpenAI API Key",
			Pattern:     `sk-[A-Za-z0-9_\-]{12,}`,
			Class:       ClassSecret,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Class:       ClassToken,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer Token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Class:       ClassToken,
		},
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
			Class:       ClassSecret,
		},
		{
			ID:          "database-url",
			Description: "Database Connection URL with credentials",
			Pattern:     `(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^:]+:[^@]+@[^\s]+`,
			Class:       ClassCredential,
		},
		{
			ID:          "npm-token",
			Description: "npm Access Token",
			Pattern:     `npm_[A-Za-z0-9]{36}`,
			Class:       ClassToken,
		},
	}
}
