package crawler

import "regexp"

// writeupPattern matches a four digit year segment followed by one of the
// known competition slugs and at least one more path character.
// "/2022/404ctf-foo/bar" matches, "/404ctf/2022" and "/2022/dvctf" do not.
var writeupPattern = regexp.MustCompile(`/\d{4}/(?:dvctf|404ctf|operation-kernel)[-\w]*/.+`)

// IsWriteupURL reports whether s (a URL or a bare path) points to a write-up.
// This is a prefix-style check, not a validation of the whole path.
func IsWriteupURL(s string) bool {
	return writeupPattern.MatchString(s)
}
