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

// Package safety evaluates requests and tool calls against guardrails:
// DDL/DML blocking, system-table and PII column access control, and
// injection heuristics. Policy blocks are terminal; they are never
// retried through the self-repair loop.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision is the outcome of one policy evaluation. Every decision,
// allow or block, is recorded as a policy_decision audit event by the
// caller.
type Decision struct {
	// Allowed is false when any rule matched.
	Allowed bool

	// Rule names the first matched rule (empty when allowed).
	Rule string

	// Reason is a human-readable explanation of the decision.
	Reason string

	// Severity is none, medium, high, or critical.
	Severity string
}

func allow() Decision {
	return Decision{Allowed: true, Severity: "none"}
}

func block(rule, reason, severity string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason, Severity: severity}
}

// Keyword classes blocked in SQL, matched case-insensitively as whole
// words.
var (
	ddlKeywords       = []string{"CREATE", "DROP", "ALTER", "TRUNCATE", "RENAME"}
	dmlKeywords       = []string{"INSERT", "UPDATE", "DELETE", "MERGE"}
	dangerousKeywords = []string{
		"GRANT", "REVOKE", "EXEC", "EXECUTE", "CALL",
		"LOAD", "COPY", "IMPORT", "EXPORT",
	}

	systemTablePatterns = []string{"pg_", "information_schema", "mysql.", "sys."}

	defaultPIIPatterns = []string{"email", "ssn", "phone", "password", "credit_card"}
)

var keywordRegexps = buildKeywordRegexps()

func buildKeywordRegexps() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp)
	for _, kws := range [][]string{ddlKeywords, dmlKeywords, dangerousKeywords} {
		for _, kw := range kws {
			res[kw] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
		}
	}
	return res
}

// injectionPatterns flag literal concatenation shapes suggestive of SQL
// injection: a quote followed by a statement separator or a comment
// marker.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`'\s*;\s*--`),
	regexp.MustCompile(`'\s*;\s*/\*`),
	regexp.MustCompile(`'\s*(?i:or)\s+'?1'?\s*=\s*'?1`),
}

// Policy evaluates SQL text, column references, and whole requests
// against the configured guardrails.
type Policy struct {
	blockedPatterns []string
	allowedColumns  map[string]struct{}

	rowLimitCeiling int
	timeoutCeiling  int
}

// Config customizes a Policy.
type Config struct {
	// BlockedPatterns extends the built-in PII column patterns
	// (substring match on the lowercased column name).
	BlockedPatterns []string

	// AllowedColumns exempts specific column names from PII blocking.
	AllowedColumns []string

	// RowLimitCeiling caps any row_limit argument (0 means 200000).
	RowLimitCeiling int

	// TimeoutCeiling caps any timeout argument in seconds (0 means 180).
	TimeoutCeiling int
}

// New creates a Policy from config, merging the built-in PII pattern
// set with caller-supplied blocked patterns.
func New(cfg Config) *Policy {
	p := &Policy{
		rowLimitCeiling: cfg.RowLimitCeiling,
		timeoutCeiling:  cfg.TimeoutCeiling,
	}
	if p.rowLimitCeiling == 0 {
		p.rowLimitCeiling = 200_000
	}
	if p.timeoutCeiling == 0 {
		p.timeoutCeiling = 180
	}

	p.blockedPatterns = append(p.blockedPatterns, defaultPIIPatterns...)
	for _, bp := range cfg.BlockedPatterns {
		p.blockedPatterns = append(p.blockedPatterns, strings.ToLower(bp))
	}

	p.allowedColumns = make(map[string]struct{}, len(cfg.AllowedColumns))
	for _, col := range cfg.AllowedColumns {
		p.allowedColumns[strings.ToLower(col)] = struct{}{}
	}
	return p
}

// CheckQuery evaluates a SQL statement against all query rules:
// DDL/DML/dangerous keywords, system tables, injection heuristics,
// stacked statements, and PII column references.
func (p *Policy) CheckQuery(query string) Decision {
	for _, kw := range ddlKeywords {
		if keywordRegexps[kw].MatchString(query) {
			return block("ddl_keyword", fmt.Sprintf("DDL operation blocked: %s", kw), "critical")
		}
	}
	for _, kw := range dmlKeywords {
		if keywordRegexps[kw].MatchString(query) {
			return block("dml_keyword", fmt.Sprintf("DML operation blocked: %s", kw), "critical")
		}
	}
	for _, kw := range dangerousKeywords {
		if keywordRegexps[kw].MatchString(query) {
			return block("dangerous_keyword", fmt.Sprintf("dangerous operation blocked: %s", kw), "critical")
		}
	}

	lower := strings.ToLower(query)
	for _, pat := range systemTablePatterns {
		if strings.Contains(lower, pat) {
			return block("system_table", fmt.Sprintf("system/metadata table access blocked: %s", pat), "high")
		}
	}

	for _, re := range injectionPatterns {
		if re.MatchString(query) {
			return block("injection_pattern", "literal concatenation suggestive of SQL injection", "high")
		}
	}
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	if strings.Contains(trimmed, ";") {
		return block("stacked_statements", "multiple SQL statements in one call", "high")
	}
	if strings.Contains(trimmed, "--") {
		return block("sql_comment", "SQL comment detected (potential injection)", "high")
	}

	if d := p.checkColumnTokens(query); !d.Allowed {
		return d
	}
	return allow()
}

// CheckColumns evaluates explicit column references against the PII
// block list minus the allow-list.
func (p *Policy) CheckColumns(columns []string) Decision {
	for _, col := range columns {
		if d := p.checkColumn(col); !d.Allowed {
			return d
		}
	}
	return allow()
}

// CheckIntent scans free text (a request intent) for references to
// blocked column patterns. Explicit PII requests fail fast before any
// planning happens.
func (p *Policy) CheckIntent(intent string) Decision {
	lower := strings.ToLower(intent)
	for _, pat := range p.blockedPatterns {
		if !strings.Contains(lower, pat) {
			continue
		}
		if _, ok := p.allowedColumns[pat]; ok {
			continue
		}
		return block("pii_column",
			fmt.Sprintf("intent references blocked column pattern %q", pat), "high")
	}
	return allow()
}

// CheckLimits validates resource arguments against the configured
// ceilings.
func (p *Policy) CheckLimits(rowLimit, timeoutSeconds int) Decision {
	if rowLimit > p.rowLimitCeiling {
		return block("row_limit_ceiling",
			fmt.Sprintf("row_limit %d exceeds ceiling %d", rowLimit, p.rowLimitCeiling), "medium")
	}
	if timeoutSeconds > p.timeoutCeiling {
		return block("timeout_ceiling",
			fmt.Sprintf("timeout %ds exceeds ceiling %ds", timeoutSeconds, p.timeoutCeiling), "medium")
	}
	return allow()
}

func (p *Policy) checkColumn(col string) Decision {
	lower := strings.ToLower(strings.TrimSpace(col))
	if _, ok := p.allowedColumns[lower]; ok {
		return allow()
	}
	for _, pat := range p.blockedPatterns {
		if strings.Contains(lower, pat) {
			return block("pii_column",
				fmt.Sprintf("column %q blocked by PII pattern %q", col, pat), "high")
		}
	}
	return allow()
}

// checkColumnTokens tokenizes identifiers out of a query and applies
// the column rules to each.
func (p *Policy) checkColumnTokens(query string) Decision {
	for _, token := range identifierRegexp.FindAllString(strings.ToLower(query), -1) {
		if sqlWords[token] {
			continue
		}
		if _, ok := p.allowedColumns[token]; ok {
			continue
		}
		for _, pat := range p.blockedPatterns {
			if strings.Contains(token, pat) {
				return block("pii_column",
					fmt.Sprintf("column %q blocked by PII pattern %q", token, pat), "high")
			}
		}
	}
	return allow()
}

var identifierRegexp = regexp.MustCompile(`[a-z_][a-z0-9_]*`)

// sqlWords are common SQL keywords skipped during identifier scanning.
var sqlWords = map[string]bool{
	"select": true, "from": true, "where": true, "group": true, "by": true,
	"order": true, "limit": true, "offset": true, "join": true, "on": true,
	"as": true, "and": true, "or": true, "not": true, "in": true,
	"between": true, "like": true, "is": true, "null": true, "asc": true,
	"desc": true, "having": true, "distinct": true, "count": true,
	"sum": true, "avg": true, "min": true, "max": true, "inner": true,
	"left": true, "right": true, "outer": true, "union": true, "all": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
}
