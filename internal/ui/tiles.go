package ui

import (
	"oidc-auth-demo/internal/api"
	"oidc-auth-demo/internal/fetch"
)

// PublicTile shows the health message. A stale value carries a badge; an
// error leaves the body empty because the banner already shows it.
func PublicTile(st fetch.State[api.HealthResponse]) string {
	switch {
	case st.Loading && !st.HasData:
		return card(PublicTitle, mutedStyle.Render(LoadingText))
	case st.HasData:
		body := []string{st.Data.Message}
		if st.IsStale {
			body = append(body, badgeStyle.Render(StaleBadge))
		}
		if st.Loading {
			body = append(body, mutedStyle.Render(LoadingText))
		}
		return card(PublicTitle, body...)
	}
	return card(PublicTitle)
}

// PrivateView is the private tile's input.
type PrivateView struct {
	Authenticated bool
	State         fetch.State[api.PrivateInfoResponse]
}

// PrivateTile shows the protected info once signed in.
func PrivateTile(v PrivateView) string {
	if !v.Authenticated {
		return card(PrivateTitle, PrivateLocked)
	}
	st := v.State
	switch {
	case st.Loading && !st.HasData:
		return card(PrivateTitle, mutedStyle.Render(LoadingText))
	case st.HasData:
		body := []string{st.Data.Message, mutedStyle.Render(st.Data.Email)}
		if st.IsStale {
			body = append(body, badgeStyle.Render(StaleBadge))
		}
		return card(PrivateTitle, body...)
	case st.Err != nil:
		return card(PrivateTitle, st.ErrorMessage())
	}
	return card(PrivateTitle)
}
