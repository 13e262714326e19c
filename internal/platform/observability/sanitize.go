package observability

import "unicode"

// cleanForLog strips control characters and caps length so attacker-supplied
// values (paths, headers, identifiers) cannot forge or flood log lines.
func cleanForLog(value string, limit int) string {
	kept := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		kept = append(kept, r)
		if len(kept) == limit {
			break
		}
	}
	return string(kept)
}

func cleanRoute(route string) string {
	if route == "" {
		return "/"
	}
	return cleanForLog(route, 180)
}

func cleanMethod(method string) string {
	return cleanForLog(method, 10)
}

// cleanPrincipal caps owner and user identifiers before they reach logs.
func cleanPrincipal(id string) string {
	return cleanForLog(id, 64)
}
