package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName converts an entity name to a snake_case plural table name.
// e.g. "User" -> "users", "UserProfile" -> "user_profiles"
func TableName(entity string) string {
	return inflection.Plural(CamelToSnake(entity))
}

// CountAttr returns the attribute a relationship count is stored under.
// e.g. "twos" -> "twos_count", "allFours" -> "all_fours_count"
func CountAttr(relation string) string {
	return CamelToSnake(relation) + "_count"
}

// ForeignKey returns the conventional foreign key column pointing at a
// parent table. e.g. ("users", "id") -> "user_id", ("one", "id") -> "one_id"
func ForeignKey(parentTable, parentKey string) string {
	return inflection.Singular(parentTable) + "_" + parentKey
}
