package nav

import "strings"

// Viewer is the session state a guard needs
type Viewer interface {
	IsAuthenticated() bool
	IsRestoring() bool
	HasRole(roles ...string) bool
}

// Decision is the outcome of guarding a route
type Decision int

const (
	// Allow renders the route
	Allow Decision = iota
	// Wait shows a loading state while the session is being restored
	Wait
	// ToLogin redirects to the login screen
	ToLogin
	// Deny renders an access-denied state; the session is untouched
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case ToLogin:
		return "login"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// roles restricts a route prefix to the listed roles
var roles = map[string][]string{
	Settings: {"admin", "security_analyst"},
}

// Guard decides whether path may be shown to v.
// Login is public; every other route requires an authenticated session.
func Guard(path string, v Viewer) Decision {
	if IsLogin(path) {
		return Allow
	}
	if v.IsRestoring() {
		return Wait
	}
	if !v.IsAuthenticated() {
		return ToLogin
	}
	for prefix, allowed := range roles {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if v.HasRole(allowed...) {
			return Allow
		}
		return Deny
	}
	return Allow
}

// Resolve applies Guard and performs the redirect on n when one is due
func Resolve(n Navigator, v Viewer) Decision {
	d := Guard(n.Location(), v)
	switch {
	case d == ToLogin:
		n.Redirect(Login)
	case d == Allow && IsLogin(n.Location()) && v.IsAuthenticated():
		n.Redirect(defaultHome)
	}
	return d
}
