// Package access decides whether a principal may act on a profile.
//
// Only the owner may see or change a profile. Anyone else is sent to their
// own profile, so a denial never confirms that another account exists.
package access

import (
	"net/url"
	"strconv"

	"github.com/dooropener/dooropener/internal/model"
)

// Outcome is the result kind of an authorization check.
type Outcome int

// Authorization outcomes.
const (
	// LoginRequired means no principal is authenticated.
	LoginRequired Outcome = iota
	// Allowed means the principal owns the target profile.
	Allowed
	// Denied means the principal targets someone else's profile.
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "login_required"
	}
}

// Decision is the outcome of Authorize.
type Decision struct {
	Outcome Outcome
	// RedirectTo is the requester's own principal ID when Outcome is Denied.
	RedirectTo int64
}

// Authorize decides whether requester may access targetID's profile.
// It has no side effects.
func Authorize(requester *model.Principal, targetID int64) Decision {
	if requester == nil || requester.ID <= 0 {
		return Decision{Outcome: LoginRequired}
	}
	if requester.ID != targetID {
		return Decision{Outcome: Denied, RedirectTo: requester.ID}
	}
	return Decision{Outcome: Allowed}
}

// ProfilePath returns the URL path of a principal's profile.
func ProfilePath(id int64) string {
	return "/profile/" + strconv.FormatInt(id, 10) + "/"
}

// LoginPath returns the login URL that sends the user back to next afterwards.
func LoginPath(next string) string {
	if next == "" {
		return "/login/"
	}
	return "/login/?" + url.Values{"next": {next}}.Encode()
}
