package grader

import (
	"regexp"
	"strings"
)

// Kind is the closed set of statement kinds the engine knows about.
// Unsupported covers statements the portal recognizes but does not grade.
type Kind int

const (
	KindUnknown Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

var (
	lineCommentPattern = regexp.MustCompile(`--[^\n]*\n?`)
	leadingKeyword     = regexp.MustCompile(`(?i)^\s*(select|insert|update|delete|create|drop|alter|show|truncate|replace|call|explain|describe|desc)\b`)
)

// StripComments removes "--" line comments and trims surrounding whitespace.
func StripComments(sql string) string {
	return strings.TrimSpace(lineCommentPattern.ReplaceAllString(sql, ""))
}

// KindOf determines the statement kind from the leading keyword,
// case-insensitively, after comment stripping.
func KindOf(sql string) Kind {
	m := leadingKeyword.FindStringSubmatch(StripComments(sql))
	if m == nil {
		return KindUnknown
	}
	switch strings.ToLower(m[1]) {
	case "select":
		return KindSelect
	case "insert":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	default:
		return KindUnsupported
	}
}

var (
	fromPattern   = regexp.MustCompile(`(?i)from\s+` + "`?" + `(\w+)` + "`?")
	insertPattern = regexp.MustCompile(`(?i)insert\s+into\s+` + "`?" + `(\w+)` + "`?")
	updatePattern = regexp.MustCompile(`(?i)update\s+` + "`?" + `(\w+)` + "`?")
)

// TableFromSQL extracts the target table name of a statement. Pattern
// matching runs first since it copes with fragments the parser rejects;
// the parser is the fallback for anything unusual.
func TableFromSQL(sql string) string {
	trimmed := StripComments(sql)

	switch KindOf(trimmed) {
	case KindInsert:
		if m := insertPattern.FindStringSubmatch(trimmed); m != nil {
			return m[1]
		}
	case KindUpdate:
		if m := updatePattern.FindStringSubmatch(trimmed); m != nil {
			return m[1]
		}
	case KindSelect, KindDelete:
		if m := fromPattern.FindStringSubmatch(trimmed); m != nil {
			return m[1]
		}
	default:
		return ""
	}

	stmt, err := parseStatement(trimmed)
	if err != nil {
		return ""
	}
	return firstTableName(stmt)
}
