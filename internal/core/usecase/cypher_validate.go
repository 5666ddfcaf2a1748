package usecase

import (
	"fmt"
	"regexp"
	"strings"
)

// Only read queries may reach the graph. Mutation keywords are matched
// on word boundaries so property names like "dataset" pass.
var forbiddenCypherRe = regexp.MustCompile(
	`\b(CREATE|DELETE|REMOVE|SET|MERGE|DROP|DETACH|ALTER)\b`,
)

var cypherFenceRes = []*regexp.Regexp{
	regexp.MustCompile("(?is)```cypher\\s*\\n(.*?)\\n```"),
	regexp.MustCompile("(?is)```\\s*\\n(.*?)\\n```"),
	regexp.MustCompile("(?is)```(.*?)```"),
}

// validateCypher rejects anything that is not a plain read query.
func validateCypher(cypher string) error {
	upper := strings.ToUpper(cypher)
	if match := forbiddenCypherRe.FindString(upper); match != "" {
		return fmt.Errorf("forbidden clause %s", match)
	}
	if !strings.Contains(upper, "MATCH") {
		return fmt.Errorf("missing MATCH clause")
	}
	if !strings.Contains(upper, "RETURN") {
		return fmt.Errorf("missing RETURN clause")
	}
	return nil
}

// extractCypher pulls the query out of a model response. Fenced blocks
// win over raw text; a response with no fence is used as-is.
func extractCypher(text string) string {
	for _, re := range cypherFenceRes {
		if match := re.FindStringSubmatch(text); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return strings.TrimSpace(text)
}
