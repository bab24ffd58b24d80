package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables into raw YAML before parsing.
// The syntax is Go template style, {{.VAR_NAME}}, rather than $VAR, so
// literal dollar signs in the file (stdio command lines, passwords, regex
// patterns) survive untouched.
//
// An unset variable renders as the empty string; required fields left empty
// that way are caught by validation. Content that does not parse as a
// template passes through unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		// Values may themselves contain '='; split on the first only.
		if idx := strings.IndexByte(kv, '='); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
