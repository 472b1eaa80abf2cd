package server

import (
	"strconv"
	"strings"

	"github.com/dimitrije/weavemock/internal/store"
)

// parseQueryOptions parses a raw query string into collection query options.
// The splitting is deliberately simple: chunks on "&", then the first "=";
// a key with no "=" gets an empty value. "ids" is a comma-separated literal
// list, "newer" a float, "limit" a base-10 integer. Unrecognized keys are
// preserved in Extra and ignored by the built-in handlers.
func parseQueryOptions(raw string) store.QueryOptions {
	var opts store.QueryOptions
	for _, chunk := range strings.Split(raw, "&") {
		if chunk == "" {
			continue
		}
		key, value, _ := strings.Cut(chunk, "=")
		switch key {
		case "ids":
			if value != "" {
				opts.IDs = strings.Split(value, ",")
			}
		case "newer":
			if value != "" {
				opts.Newer, _ = strconv.ParseFloat(value, 64)
			}
		case "limit":
			if value != "" {
				n, _ := strconv.ParseInt(value, 10, 64)
				opts.Limit = int(n)
			}
		case "full":
			opts.Full = value != ""
		default:
			if opts.Extra == nil {
				opts.Extra = map[string]string{}
			}
			opts.Extra[key] = value
		}
	}
	return opts
}
