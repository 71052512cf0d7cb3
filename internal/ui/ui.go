// Package ui renders the demo's terminal views.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle    = lipgloss.NewStyle().Bold(true)
	buttonStyle   = lipgloss.NewStyle().Padding(0, 2).Bold(true)
	loginStyle    = buttonStyle.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("27"))
	logoutStyle   = buttonStyle.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160"))
	disabledStyle = buttonStyle.Foreground(lipgloss.Color("245")).Background(lipgloss.Color("237"))
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
	badgeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Border(lipgloss.NormalBorder()).Padding(0, 1)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bannerStyle   = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("9")).
			Foreground(lipgloss.Color("9")).
			Padding(0, 1)
)

// Texts shared with tests and the CLI.
const (
	AppTitle        = "OIDC Auth Demo"
	LoadingText     = "Loading..."
	GuestText       = "Browsing as Guest"
	StaleBadge      = "stale data"
	PrivateLocked   = "No access to private endpoint. Please login to get access."
	PublicTitle     = "Public Health Status"
	PrivateTitle    = "Private Content"
	ErrorDemoTitle  = "Error Banner Demo"
	DemoErrorText   = "This is a test error message. It will auto-dismiss in 5 seconds, or you can close it manually."
	defaultUserName = "User"
)

// HeaderView is what the header needs to know about the session.
type HeaderView struct {
	Loading       bool
	Authenticated bool
	UserName      string
}

// Header renders the title bar with the sign-in status and the action the
// user can take next.
func Header(v HeaderView) string {
	var status, action string
	switch {
	case v.Loading:
		status, action = LoadingText, disabledStyle.Render(LoadingText)
	case v.Authenticated:
		name := v.UserName
		if name == "" {
			name = defaultUserName
		}
		status, action = "Signed in as "+name, logoutStyle.Render("Logout")
	default:
		status, action = GuestText, loginStyle.Render("Login")
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		subtitleStyle.Render(AppTitle),
		titleStyle.Render(status),
	)
	return lipgloss.JoinHorizontal(lipgloss.Center, left, "    ", action)
}

func card(title string, body ...string) string {
	lines := append([]string{titleStyle.Render(title), ""}, body...)
	return cardStyle.Render(strings.Join(lines, "\n"))
}

// TilesGrid lays tiles out in rows of columns. Anything below two columns
// stacks them.
func TilesGrid(columns int, tiles ...string) string {
	if columns < 2 {
		return lipgloss.JoinVertical(lipgloss.Left, tiles...)
	}
	var rows []string
	for start := 0; start < len(tiles); start += columns {
		end := start + columns
		if end > len(tiles) {
			end = len(tiles)
		}
		row := make([]string, 0, 2*(end-start))
		for i, tile := range tiles[start:end] {
			if i > 0 {
				row = append(row, "  ")
			}
			row = append(row, tile)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// ErrorBanner renders the current error, or "" when there is none.
func ErrorBanner(message string, ok bool) string {
	if !ok {
		return ""
	}
	return bannerStyle.Render(titleStyle.Render("Error") + "\n" + message)
}

// Page stacks the banner (when set), header and body.
func Page(banner, header, body string) string {
	parts := make([]string, 0, 3)
	if banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, header, "", body)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
