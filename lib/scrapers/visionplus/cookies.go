package visionplus

import (
	"net/http"
	"strings"
)

// CookieStore is the hand-maintained cookie jar for a single VisionPlus session.
//
// It keeps every name=value pair it has ever seen in arrival order. Nothing is
// deduplicated, expired or scoped to a domain: the remote host is a single
// short-lived session and tolerates redundant cookies, but it must receive the
// session affinity cookie back exactly as it was issued.
type CookieStore struct {
	cookies []string
}

// Store appends the name=value prefix of every Set-Cookie value in the given
// headers and returns how many pairs were added.
func (s *CookieStore) Store(header http.Header) int {
	added := 0
	for _, value := range header.Values("Set-Cookie") {
		for _, part := range strings.Split(value, ",") {
			pair, _, _ := strings.Cut(part, ";")
			pair = strings.TrimSpace(pair)
			// the tail of a comma split "Expires=Wed, 21 Oct 2015 ..." attribute
			// has no '=' before its first ';', it is not a cookie
			if pair == "" || !strings.Contains(pair, "=") {
				continue
			}
			s.cookies = append(s.cookies, pair)
			added++
		}
	}
	return added
}

// Header renders the accumulated cookies as an outgoing Cookie header value.
func (s *CookieStore) Header() string {
	return strings.Join(s.cookies, "; ")
}

func (s *CookieStore) Values() []string {
	out := make([]string, len(s.cookies))
	copy(out, s.cookies)
	return out
}

func (s *CookieStore) Len() int {
	return len(s.cookies)
}

func (s *CookieStore) Reset() {
	s.cookies = nil
}
