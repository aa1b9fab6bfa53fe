package portal

import (
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/usecase/session"
)

// Link is one navigation entry of the header.
type Link struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Header is the navigation model rendered above every page.
type Header struct {
	SignedIn bool   `json:"signedIn"`
	Name     string `json:"name,omitempty"`
	Links    []Link `json:"links"`
}

var memberLinks = []Link{
	{Label: "Groups", Path: "/groups"},
	{Label: "Events", Path: "/events"},
	{Label: "Marketplace", Path: "/marketplace"},
	{Label: "Messages", Path: "/messages"},
	{Label: "Profile", Path: "/profile"},
}

// NewHeader builds the header for a principal. Anonymous visitors get the
// sign-in link at signInPath. The moderation and admin links appear only when
// the principal's capabilities allow those pages.
func NewHeader(p session.Principal, signInPath string) Header {
	if p.User == nil {
		if signInPath == "" {
			signInPath = "/signin"
		}
		return Header{Links: []Link{{Label: "Sign in", Path: signInPath}, {Label: "Sign up", Path: "/signup"}}}
	}

	h := Header{SignedIn: true, Name: p.User.Name()}
	h.Links = append(h.Links, memberLinks...)

	caps := p.Capabilities()
	if caps.Allows(domain.RoleModerator) {
		h.Links = append(h.Links, Link{Label: "Moderation", Path: "/moderation"})
	}
	if caps.Allows(domain.RoleAdmin) {
		h.Links = append(h.Links, Link{Label: "Admin", Path: "/admin"})
	}
	return h
}
