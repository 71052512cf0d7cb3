package auth

import "strings"

// BearerValue formats an Authorization header value. An empty token yields "".
func BearerValue(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(authHeader string) (string, bool) {
	// Support "Bearer <token>" format, scheme is case-insensitive
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
