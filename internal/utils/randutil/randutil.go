package randutil

import (
	"strings"
)

// MaskString hides the middle of a secret, keeping visibleStart and
// visibleEnd characters readable. Auth tokens are only ever logged through
// this.
func MaskString(secret string, visibleStart, visibleEnd int) string {
	if len(secret) <= visibleStart+visibleEnd {
		return secret
	}

	start := secret[:visibleStart]
	end := secret[len(secret)-visibleEnd:]
	masked := start + strings.Repeat("*", len(secret)-(visibleStart+visibleEnd)) + end
	return masked
}
