// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safety

import (
	"regexp"
	"strings"
)

// RedactedValue replaces sensitive values in audit payloads.
const RedactedValue = "***REDACTED***"

// sensitiveKeys are matched against normalized map keys (lowercased,
// separators stripped) before payloads are written to the audit log.
var sensitiveKeys = []string{
	"password", "passwd", "pwd", "token", "apikey", "secret",
	"credential", "auth", "privatekey", "publickey",
	"accesstoken", "refreshtoken", "bearer", "connectionstring",
	"clientsecret", "clientid", "sessionid", "sessiontoken",
}

var keyNormalizer = regexp.MustCompile(`[^a-z0-9]`)

// credentialValuePatterns flag string values that look like embedded
// credentials regardless of their key.
var credentialValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|access[_-]?token|refresh[_-]?token|` +
		`api[_-]?key|secret|private[_-]?key|connection[_-]?string|` +
		`client[_-]?secret|session[_-]?id|session[_-]?token)\b\s*[:=]\s*` +
		`("[^"]+"|'[^']+'|[^\s,;]+)`),
	regexp.MustCompile(`\b[A-Za-z0-9+/]{40,}={0,2}\b`),
	regexp.MustCompile(`\b(AKIA|A3T|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`),
}

// cardCandidate matches 13-19 digit runs with optional space/dash
// separators. Candidates are confirmed with a Luhn check to avoid
// redacting ordinary numeric IDs.
var cardCandidate = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// IsCreditCard reports whether s is a Luhn-valid card number of
// plausible length.
func IsCreditCard(s string) bool {
	var digits []int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func redactCardNumbers(s string) string {
	return cardCandidate.ReplaceAllStringFunc(s, func(m string) string {
		if IsCreditCard(m) {
			return RedactedValue
		}
		return m
	})
}

// Redact returns a deep copy of v with sensitive map values and
// credential-shaped strings replaced by RedactedValue. Input is never
// modified.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if isSensitiveKey(k) {
				out[k] = RedactedValue
			} else {
				out[k] = Redact(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	case string:
		for _, re := range credentialValuePatterns {
			if re.MatchString(val) {
				return RedactedValue
			}
		}
		return redactCardNumbers(val)
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	normalized := keyNormalizer.ReplaceAllString(strings.ToLower(key), "")
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(normalized, sensitive) {
			return true
		}
	}
	return false
}
