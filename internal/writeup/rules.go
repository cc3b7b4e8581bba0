package writeup

import "strings"

// Rule maps a token found in a write-up URL to a competition name.
type Rule struct {
	// Token is searched as a plain substring of the full URL.
	Token string

	// Name is the competition name assigned when Token matches.
	Name string

	// RequireCategory makes URLs with two or fewer path segments fail
	// classification instead of getting a "N/A" category.
	RequireCategory bool
}

// DefaultRules are the known competitions, in priority order.
// The DVCTF token is checked first because its long slug is the most specific.
var DefaultRules = []Rule{
	{Token: "dvctf-to-join-davincicode", Name: "DVCTF"},
	{Token: "404ctf", Name: "404 CTF", RequireCategory: true},
	{Token: "operation-kernel", Name: "Operation Kernel", RequireCategory: true},
}

// match returns the first rule whose token is contained in rawURL.
func match(rules []Rule, rawURL string) (Rule, bool) {
	for _, r := range rules {
		if strings.Contains(rawURL, r.Token) {
			return r, true
		}
	}
	return Rule{}, false
}
