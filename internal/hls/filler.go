// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import "strings"

// URI fragments that FAST providers use for ad breaks, promos and
// placeholder loops spliced into the programme.
var fillerSignatures = []string{
	"_plutotv_error_",
	"_plutotv_filler_",
	"_Space_Station_",
	"_Promo/",
	"_ad_bumper_",
	"_Well_be_right_back/",
}

// IsFiller reports whether a segment URI belongs to spliced-in filler
// rather than programme content.
func IsFiller(uri string) bool {
	for _, sig := range fillerSignatures {
		if strings.Contains(uri, sig) {
			return true
		}
	}
	return false
}
