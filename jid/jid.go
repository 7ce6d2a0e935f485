// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"net/netip"
	"strings"

	"okami.im/gxmpp/internal/stringprep"
)

// JID represents an XMPP address comprising a localpart, domainpart, and
// resourcepart, all held in escaped, normalized form.
//
// JIDs are immutable: none of the fields can change after construction, so a
// *JID may be shared freely between goroutines.
type JID struct {
	local    string
	domain   string
	resource string
}

// Parse constructs a JID from its escaped string representation. The string
// is split on the first '/' into a remainder and a resourcepart, and the
// remainder on the first '@' into a localpart and a domainpart; resourceparts
// may therefore contain further '/' and '@' characters.
//
// Parse trusts its input to already be in escaped, normalized wire form and
// applies no validation beyond requiring a domainpart.
func Parse(s string) (*JID, error) {
	if j, ok := parseCache.Get(s); ok {
		return j, nil
	}
	local, domain, resource := splitString(s)
	if domain == "" {
		return nil, ErrEmptyDomain
	}
	j := &JID{local: local, domain: domain, resource: resource}
	parseCache.Add(s, j)
	return j, nil
}

// MustParse works like Parse but panics if the JID cannot be parsed, similar
// to regexp.MustCompile.
func MustParse(s string) *JID {
	j, err := Parse(s)
	if err != nil {
		if strings.ContainsRune(s, '"') {
			s = "`" + s + "`"
		} else {
			s = `"` + s + `"`
		}
		panic(`jid: MustParse(` + s + `): ` + err.Error())
	}
	return j
}

// New constructs a JID from unescaped parts, validating and canonicalizing
// each of them. The localpart is escaped per XEP-0106 and then enforced
// against the UsernameCaseMapped PRECIS profile; the domainpart is encoded
// as an IDNA A-label unless it is an IP literal; the resourcepart is
// enforced against the OpaqueString PRECIS profile. Empty localparts and
// resourceparts mean the part is absent.
func New(local, domain, resource string) (*JID, error) {
	key := local + "\x00" + domain + "\x00" + resource
	if j, ok := newCache.Get(key); ok {
		return j, nil
	}

	var err error
	if local != "" {
		if local[0] == ' ' || local[len(local)-1] == ' ' {
			return nil, ErrBoundarySpace
		}
		local, err = stringprep.Localpart(Escape.String(local))
		if err != nil {
			return nil, precisErr(err)
		}
		if len(local) == 0 || len(local) > 1023 {
			return nil, &LengthError{Part: "localpart"}
		}
	}

	domain, err = normalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	if resource != "" {
		resource, err = stringprep.Resourcepart(resource)
		if err != nil {
			return nil, precisErr(err)
		}
		if len(resource) == 0 || len(resource) > 1023 {
			return nil, &LengthError{Part: "resourcepart"}
		}
	}

	j := &JID{local: local, domain: domain, resource: resource}
	newCache.Add(key, j)
	return j, nil
}

func splitString(s string) (local, domain, resource string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s, resource = s[:i], s[i+1:]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		local, domain = s[:i], s[i+1:]
	} else {
		domain = s
	}
	return local, domain, resource
}

func normalizeDomain(domain string) (string, error) {
	if domain == "" {
		return "", ErrEmptyDomain
	}
	// IP literals bypass IDNA; IPv6 literals keep their brackets in the
	// stored form.
	if ip, err := netip.ParseAddr(domain); err == nil && ip.Is4() {
		return domain, nil
	}
	if ip, err := netip.ParseAddr(strings.Trim(domain, "[]")); err == nil && ip.Is6() {
		return domain, nil
	}
	domain = strings.TrimSuffix(domain, ".")
	domain, err := stringprep.Domainpart(domain)
	if err != nil {
		return "", &IDNAError{Err: err}
	}
	if len(domain) == 0 || len(domain) > 1023 {
		return "", &LengthError{Part: "domainpart"}
	}
	return domain, nil
}

func precisErr(err error) error {
	if pe, ok := err.(*stringprep.ProfileError); ok {
		return &PrecisError{Profile: pe.Profile, Err: pe.Err}
	}
	return err
}

// Localpart returns the localpart of the JID (eg. "username").
func (j *JID) Localpart() string { return j.local }

// Domainpart returns the domainpart of the JID (eg. "example.net").
func (j *JID) Domainpart() string { return j.domain }

// Resourcepart returns the resourcepart of the JID (eg. "someclient-abc123").
func (j *JID) Resourcepart() string { return j.resource }

// Bare returns a copy of the JID without its resourcepart. This is sometimes
// called a "bare" JID.
func (j *JID) Bare() *JID {
	return &JID{local: j.local, domain: j.domain}
}

// Domain returns a copy of the JID with only its domainpart.
func (j *JID) Domain() *JID {
	return &JID{domain: j.domain}
}

// Copy makes a copy of the JID. j.Equal(j.Copy()) will always return true.
func (j *JID) Copy() *JID {
	return &JID{local: j.local, domain: j.domain, resource: j.resource}
}

// Network satisfies the net.Addr interface by returning the name of the
// network ("xmpp").
func (j *JID) Network() string { return "xmpp" }

// String converts the JID to its string representation.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	s := j.domain
	if j.local != "" {
		s = j.local + "@" + s
	}
	if j.resource != "" {
		s = s + "/" + j.resource
	}
	return s
}

// Equal performs a comparison of the two JIDs. Localparts and resourceparts
// are compared octet for octet; domainparts are compared in IDNA-canonical
// form with IPv6 brackets stripped, so two JIDs whose domains are equivalent
// U-labels and A-labels compare equal.
func (j *JID) Equal(j2 *JID) bool {
	if j == j2 {
		return true
	}
	if j == nil || j2 == nil {
		return false
	}
	return j.local == j2.local && j.resource == j2.resource &&
		canonicalDomain(j.domain) == canonicalDomain(j2.domain)
}

func canonicalDomain(domain string) string {
	domain = strings.TrimSuffix(strings.Trim(domain, "[]"), ".")
	if a, err := stringprep.Domainpart(domain); err == nil && a != "" {
		return a
	}
	return strings.ToLower(domain)
}

// Unescaped is the presentation form of a JID: a plain triple with the
// XEP-0106 escape sequences of the localpart reversed. It is only suitable
// for display to a human user or for gatewaying to a non-XMPP system; it
// must not be used for comparison or in stanzas sent to another entity.
type Unescaped struct {
	Local    string
	Domain   string
	Resource string
}

// Unescaped returns the presentation form of the JID.
func (j *JID) Unescaped() Unescaped {
	return Unescaped{
		Local:    Unescape.String(j.local),
		Domain:   j.domain,
		Resource: j.resource,
	}
}

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface and marshals the
// JID as an XML attribute.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j == nil {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface and
// unmarshals an XML attribute into a valid JID (or returns an error).
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	j.local = parsed.local
	j.domain = parsed.domain
	j.resource = parsed.resource
	return nil
}
