package service

import (
	"net/url"
	"strings"
)

// Links builds the absolute URLs that appear in admin emails.
type Links struct {
	BaseURL string
}

// Setup returns the password setup link for a raw setup token.
func (l Links) Setup(token string) string {
	return l.base() + "/admin/setup?token=" + url.QueryEscape(token)
}

// Access returns the secret gate URL for an access path. The key is sent
// separately and never embedded in the link.
func (l Links) Access(path string) string {
	return l.base() + path
}

func (l Links) base() string {
	return strings.TrimRight(l.BaseURL, "/")
}
