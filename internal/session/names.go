package session

import (
	"regexp"
	"strings"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeName lowercases name and collapses every run of characters outside
// [a-z0-9._-] into a single '-'. Leading and trailing separators are dropped.
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-.")
}

// NameFromBranch derives a session name from a branch, e.g. "feature/Login" -> "feature-login".
func NameFromBranch(branch string) string {
	return SanitizeName(branch)
}

// BranchFor returns the branch a session named name works on.
func BranchFor(prefix, name string) string {
	return prefix + name
}
