package config

import "net/url"

// RedactURL strips userinfo (username and password) from a connection URL so
// it can be included in diagnostics and log output.
//
// Strings that do not parse as URLs, or that carry no host part, are returned
// unchanged: there is nothing to redact and the caller still wants a usable
// message.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
