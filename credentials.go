package wavebus

import (
	"net/http"
	"net/url"
)

// CredentialStore supplies the session credential carried by the one-time
// Authenticate envelope. Absence of a credential is not an error; the
// channel simply skips authentication.
type CredentialStore interface {
	SessionToken() (string, bool)
}

// StaticCredentials is a fixed session token. The empty string means no
// credential.
type StaticCredentials string

func (c StaticCredentials) SessionToken() (string, bool) {
	return string(c), c != ""
}

// CookieCredentials reads the session token from a cookie jar, the way a
// browser-hosted client reads its session cookie.
type CookieCredentials struct {
	Jar  http.CookieJar
	URL  *url.URL
	Name string
}

func (c CookieCredentials) SessionToken() (string, bool) {
	if c.Jar == nil || c.URL == nil {
		return "", false
	}
	for _, ck := range c.Jar.Cookies(c.URL) {
		if ck.Name == c.Name {
			return ck.Value, ck.Value != ""
		}
	}
	return "", false
}
