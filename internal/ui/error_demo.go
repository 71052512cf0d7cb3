package ui

import "oidc-auth-demo/internal/fetch"

// ErrorDemo pushes a test message into the error sink so the banner can be
// tried out.
type ErrorDemo struct {
	sink fetch.ErrorSink
}

// NewErrorDemo creates the demo bound to sink.
func NewErrorDemo(sink fetch.ErrorSink) *ErrorDemo {
	return &ErrorDemo{sink: sink}
}

// Trigger sets the demo message.
func (d *ErrorDemo) Trigger() { d.sink.SetError(DemoErrorText) }

// Clear removes whatever message is showing.
func (d *ErrorDemo) Clear() { d.sink.ClearError() }

// Render draws the demo panel with its two actions.
func (d *ErrorDemo) Render() string {
	return card(ErrorDemoTitle, logoutStyle.Render("Trigger Error")+"  "+disabledStyle.Render("Clear Error"))
}
