package auth

import (
	"net/url"
	"strings"
)

// RecoveryLink builds the link mailed to users who asked for a password reset.
func RecoveryLink(siteURL, token string) string {
	v := url.Values{}
	v.Set("access_token", token)
	v.Set("type", "recovery")
	return strings.TrimRight(siteURL, "/") + "/#" + v.Encode()
}

// ParseRecoveryFragment extracts the access token from a location fragment
// such as "#access_token=...&type=recovery". It returns "" unless the fragment
// is a recovery fragment carrying a token.
func ParseRecoveryFragment(fragment string) string {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return ""
	}
	values, err := url.ParseQuery(fragment)
	if err != nil {
		return ""
	}
	if values.Get("type") != "recovery" {
		return ""
	}
	return values.Get("access_token")
}
