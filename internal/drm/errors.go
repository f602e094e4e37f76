// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package drm

import (
	"errors"
	"strings"
)

// Error reports detected protection. It is never retried.
type Error struct {
	Source     Source
	Indicators []string
}

func (e *Error) Error() string {
	if len(e.Indicators) == 0 {
		return "drm protected (" + string(e.Source) + ")"
	}
	return "drm protected (" + string(e.Source) + "): " + strings.Join(e.Indicators, "; ")
}

// IsProtected reports whether err carries a *Error anywhere in its chain.
func IsProtected(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
