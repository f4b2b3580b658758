// Package ufnet contains utilities for domain and hostname parsing/validation.
package ufnet

import "strings"

// maxDomainNameLen is the maximum length of an ASCII hostname including dots.
const maxDomainNameLen = 253

// maxLabelLen is the maximum length of a single hostname label.
const maxLabelLen = 63

// ExtractHostname quickly retrieves hostname from the given URL.
//
// NOTE: ExtractHostname is a best-effort function.  The result is not
// guaranteed to be correct for non-hierarchical URLs and IPv6 hostnames.
func ExtractHostname(url string) (hostname string) {
	firstIdx := strings.Index(url, "//")
	if firstIdx == -1 {
		// Non-hierarchical URL, e.g. stun: or turn:.
		//
		// See https://datatracker.ietf.org/doc/html/rfc7064#appendix-B.
		firstIdx = strings.Index(url, ":")
		if firstIdx == -1 {
			return ""
		}

		firstIdx = firstIdx - 1
	} else {
		firstIdx = firstIdx + 2
	}

	if firstIdx < 0 {
		return ""
	}

	nextIdx := strings.IndexAny(url[firstIdx:], "/:?#")
	if nextIdx == -1 {
		nextIdx = len(url)
	} else {
		nextIdx += firstIdx
	}

	if nextIdx <= firstIdx {
		return ""
	}

	return url[firstIdx:nextIdx]
}

// TrimWWW removes the leading "www." label from host, if any.
func TrimWWW(host string) (trimmed string) {
	return strings.TrimPrefix(host, "www.")
}

// IsDomainName returns true if name is a valid ASCII domain name:
//
//   - every label is 1 to 63 characters long and contains only ASCII letters,
//     digits, and hyphens, but does not start or end with a hyphen;
//   - the whole name is at most 253 characters long;
//   - the top-level label is either at least two ASCII letters or a punycode
//     label ("xn--" followed by at least four characters).
func IsDomainName(name string) (ok bool) {
	if name == "" || len(name) > maxDomainNameLen {
		return false
	}

	labels := strings.Split(name, ".")
	for _, l := range labels {
		if !isValidLabel(l) {
			return false
		}
	}

	return isValidTLD(labels[len(labels)-1])
}

// isValidLabel returns true if l is a valid hostname label.
func isValidLabel(l string) (ok bool) {
	if l == "" || len(l) > maxLabelLen || l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}

	for i := range len(l) {
		if !isLetter(l[i]) && !isDigit(l[i]) && l[i] != '-' {
			return false
		}
	}

	return true
}

// isValidTLD returns true if tld is a valid top-level label.
func isValidTLD(tld string) (ok bool) {
	if strings.HasPrefix(tld, "xn--") {
		return len(tld) >= len("xn--wwww")
	}

	if len(tld) < 2 {
		return false
	}

	for i := range len(tld) {
		if !isLetter(tld[i]) {
			return false
		}
	}

	return true
}

func isLetter(c byte) (ok bool) {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) (ok bool) {
	return c >= '0' && c <= '9'
}
