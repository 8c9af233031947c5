package config

import "os"

// ExpandEnv expands environment variable references in YAML content using
// ${NAME} syntax, resolved at load time.
//
// Expansion is a plain textual substitution so operators can override any
// string value at runtime:
//   - token: ${COUNCIL_WEBHOOK_TOKEN} → value of COUNCIL_WEBHOOK_TOKEN
//   - url: https://${NOTIFY_HOST}/hooks → host substituted in place
//
// Missing variables expand to the empty string rather than failing the
// load. Validation catches required fields that end up empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
