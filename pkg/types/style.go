package types

import "fmt"

// StyleTag identifies one of the fixed style categories a quiz can award.
type StyleTag string

// Known style tags, in canonical declaration order.
const (
	StyleClassico      StyleTag = "classico"
	StyleRomantico     StyleTag = "romantico"
	StyleDramatico     StyleTag = "dramatico"
	StyleNatural       StyleTag = "natural"
	StyleCriativo      StyleTag = "criativo"
	StyleElegante      StyleTag = "elegante"
	StyleSensual       StyleTag = "sensual"
	StyleContemporaneo StyleTag = "contemporaneo"
)

// canonicalStyles is the declaration order. Rank defaults and zero-point
// tie-breaks both follow this order, so it must never be reordered.
var canonicalStyles = [...]StyleTag{
	StyleClassico,
	StyleRomantico,
	StyleDramatico,
	StyleNatural,
	StyleCriativo,
	StyleElegante,
	StyleSensual,
	StyleContemporaneo,
}

var displayNames = map[StyleTag]string{
	StyleClassico:      "Clássico",
	StyleRomantico:     "Romântico",
	StyleDramatico:     "Dramático",
	StyleNatural:       "Natural",
	StyleCriativo:      "Criativo",
	StyleElegante:      "Elegante",
	StyleSensual:       "Sensual",
	StyleContemporaneo: "Contemporâneo",
}

var styleIndex = func() map[StyleTag]int {
	m := make(map[StyleTag]int, len(canonicalStyles))
	for i, s := range canonicalStyles {
		m[s] = i
	}
	return m
}()

// AllStyles returns every known tag in canonical order. The returned slice is
// a fresh copy and may be modified by the caller.
func AllStyles() []StyleTag {
	out := make([]StyleTag, len(canonicalStyles))
	copy(out, canonicalStyles[:])
	return out
}

// StyleCount is the number of known tags.
func StyleCount() int { return len(canonicalStyles) }

// Index returns the canonical position of s, or false if s is not a known tag.
func (s StyleTag) Index() (int, bool) {
	i, ok := styleIndex[s]
	return i, ok
}

// Valid reports whether s belongs to the closed enumeration.
func (s StyleTag) Valid() bool {
	_, ok := styleIndex[s]
	return ok
}

// DisplayName returns the human-readable label, or the raw tag when unknown.
func (s StyleTag) DisplayName() string {
	if n, ok := displayNames[s]; ok {
		return n
	}
	return string(s)
}

// ParseStyleTag converts a raw string into a known StyleTag.
func ParseStyleTag(raw string) (StyleTag, error) {
	s := StyleTag(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown style tag %q", raw)
	}
	return s, nil
}
