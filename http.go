package authflow

import (
	"net/http"
	"net/url"
	"strings"
)

// redirectWithStatus redirects to target with a plain-language status
// message in the query string. Terminal failure states always land on a
// stable entry point this way; no stack traces or internal identifiers are
// surfaced.
func redirectWithStatus(w http.ResponseWriter, r *http.Request, target, status string) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	if status != "" {
		q := u.Query()
		q.Set("status", status)
		u.RawQuery = q.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// localRedirectTarget returns the caller-requested return URL when it is a
// local path, or fallback otherwise. Absolute URLs are rejected to keep
// redirects on-site.
func localRedirectTarget(r *http.Request, fallback string) string {
	target := r.FormValue("returnUrl")
	if target == "" {
		target = r.URL.Query().Get("returnUrl")
	}
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return fallback
	}
	return target
}
