// Package timestamp implements the server clock for the sync protocol.
//
// The protocol exposes timestamps as floating-point seconds with 1/100s
// granularity, matching what the production storage servers return.
package timestamp

import (
	"math"
	"strconv"
	"time"
)

// Now returns the current server time in seconds, rounded to 1/100s.
func Now() float64 {
	return math.Round(float64(time.Now().UnixMilli())/10) / 100
}

// Format renders a timestamp the way it appears on the wire: a plain decimal
// string with no exponent and no trailing zeros ("1346556.78", "1346557").
func Format(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}
