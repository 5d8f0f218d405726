package mysql

import "strings"

// scopeOrDash keeps rows of an unnamed scope addressable: an empty or
// whitespace scope is stored as "-".
func scopeOrDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "-"
	}
	return s
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likePrefix turns prefix into a LIKE pattern with '!' as the escape char.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
