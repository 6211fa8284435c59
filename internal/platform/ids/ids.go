// Package ids mints sortable identifiers for consent-console records.
package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixTemplate  = "tpl"
	PrefixConsent   = "cns"
	PrefixVendor    = "vnd"
	PrefixAccessLog = "val"
)

// New returns "<prefix>_<ulid>" with a lower-case ULID.
func New(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Valid reports whether id is a well-formed prefixed ULID.
func Valid(prefix, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(rest))
	return err == nil
}
