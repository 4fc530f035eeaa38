// Package cookies accumulates cookies observed across the hops of one
// redirect chain.
package cookies

import "strings"

// Jar holds the raw Set-Cookie values seen so far and the merged
// Cookie header sent on every following hop.
//
// Tokens are concatenated in arrival order. A cookie name that is set
// again on a later hop is not replaced: both tokens are sent upstream and
// both raw values are exposed.
type Jar struct {
	exposed []string
	merged  string
}

// New returns a Jar seeded with the caller supplied cookie string.
func New(seed string) *Jar {
	j := &Jar{}
	j.Seed(seed)
	return j
}

// Seed sets the starting merged cookie string.
func (j *Jar) Seed(initial string) {
	j.merged = initial
}

// Record stores a raw Set-Cookie value and appends its name=value token
// (everything before the first ';') to the merged string.
func (j *Jar) Record(raw string) {
	j.exposed = append(j.exposed, raw)

	token, _, _ := strings.Cut(raw, ";")
	if j.merged == "" {
		j.merged = token
		return
	}
	j.merged = j.merged + "; " + token
}

// Exposed returns the raw Set-Cookie values in the order they were recorded.
func (j *Jar) Exposed() []string {
	out := make([]string, len(j.exposed))
	copy(out, j.exposed)
	return out
}

// Header returns the merged cookie string for the outbound Cookie header.
func (j *Jar) Header() string {
	return j.merged
}
