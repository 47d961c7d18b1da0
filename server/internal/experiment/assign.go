package experiment

import "unicode/utf16"

// AssignVariant deterministically buckets userKey into an arm of testName.
// split is the percentage of users sent to arm B.
//
// The hash is the 32-bit h = h*31 + c over UTF-16 code units of
// userKey+testName, so assignments agree with the browser-side script.
func AssignVariant(testName, userKey string, split int) string {
	if bucketOf(userKey+testName) < split {
		return ArmB
	}
	return ArmA
}

func bucketOf(s string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}
