package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrTableNotFound      = errors.New("table not found or no schema information")
	ErrMultipleStatements = errors.New("condition must not contain ';'")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent validates name as a bare SQL identifier and returns it
// double-quoted. Table and column names never reach SQL text unquoted.
func quoteIdent(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

// columnList turns a column spec ("*" or "a, b, c") into quoted SQL.
func columnList(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" {
		return "*", nil
	}
	parts := strings.Split(spec, ",")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		q, err := quoteIdent(p)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, ", "), nil
}

// checkCondition accepts a WHERE fragment. Conditions remain caller SQL,
// but are confined to a single statement.
func checkCondition(cond string) error {
	if strings.Contains(cond, ";") {
		return ErrMultipleStatements
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
