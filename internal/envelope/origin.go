package envelope

import (
	"errors"
	"net/url"
	"strings"
)

// Wildcard is the target origin used when no meaningful origin exists.
const Wildcard = "*"

// ErrUntrustedFileOrigin is returned for a file: document that has not
// explicitly opted into wildcard targeting.
var ErrUntrustedFileOrigin = errors.New("file origin requires trusted_origin")

// OriginPolicy decides how envelopes are targeted and which inbound
// origins are accepted.
//
// Trusted means the deployment is local and single-user: envelopes from any
// origin are accepted and file: documents target the wildcard origin. This
// is not a security boundary and must stay off when the skin is served from
// an origin shared with untrusted content.
type OriginPolicy struct {
	DocumentURL string
	Trusted     bool
}

// IsFile reports whether the document was loaded from the local filesystem.
func (p OriginPolicy) IsFile() bool {
	return strings.HasPrefix(strings.ToLower(p.DocumentURL), "file:")
}

// Origin returns scheme://host[:port] of the document, or "null" for
// documents without a derivable origin.
func (p OriginPolicy) Origin() string {
	if p.IsFile() || p.DocumentURL == "" {
		return "null"
	}
	u, err := url.Parse(p.DocumentURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "null"
	}
	return u.Scheme + "://" + u.Host
}

// Target returns the targetOrigin used when posting.
func (p OriginPolicy) Target() string {
	if p.IsFile() {
		return Wildcard
	}
	return p.Origin()
}

// Accept reports whether an inbound envelope from origin is processed.
func (p OriginPolicy) Accept(origin string) bool {
	if p.Trusted {
		return true
	}
	return origin == p.Origin()
}

// Matches reports whether a message posted with targetOrigin may be
// delivered to a receiver using this policy.
func (p OriginPolicy) Matches(targetOrigin string) bool {
	return targetOrigin == Wildcard || targetOrigin == p.Origin()
}

// Validate rejects a file: document that is not explicitly trusted.
func (p OriginPolicy) Validate() error {
	if p.IsFile() && !p.Trusted {
		return ErrUntrustedFileOrigin
	}
	return nil
}
