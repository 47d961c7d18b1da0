package experiment

import (
	"strings"

	"github.com/quizfunnel/quizfunnel/pkg/types"
)

// matcher decides arm membership for events carrying the attribute it
// inspects. applies is false when the event lacks that attribute, and the
// next matcher is consulted.
type matcher func(ev types.Event, arm Arm) (member, applies bool)

// matchers in precedence order. The first one that applies decides.
var matchers = []matcher{
	matchVariantTag,
	matchPixel,
	matchPage,
	matchEventName,
}

func matchVariantTag(ev types.Event, arm Arm) (bool, bool) {
	if ev.CustomData.Variant == "" {
		return false, false
	}
	return arm.ID != "" && strings.EqualFold(ev.CustomData.Variant, arm.ID), true
}

func matchPixel(ev types.Event, arm Arm) (bool, bool) {
	if ev.CustomData.PixelID == "" {
		return false, false
	}
	return arm.PixelID != "" && ev.CustomData.PixelID == arm.PixelID, true
}

func matchPage(ev types.Event, arm Arm) (bool, bool) {
	if ev.CustomData.Page == "" {
		return false, false
	}
	return arm.Route != "" && strings.Contains(ev.CustomData.Page, arm.Route), true
}

func matchEventName(ev types.Event, arm Arm) (bool, bool) {
	return arm.ID != "" && strings.HasSuffix(ev.EventName, "variant_"+arm.ID), true
}

// Belongs reports whether ev is attributed to arm.
func Belongs(ev types.Event, arm Arm) bool {
	for _, m := range matchers {
		if member, ok := m(ev, arm); ok {
			return member
		}
	}
	return false
}
