package experiment

import (
	"errors"
	"fmt"
	"strings"
)

// Arm identifiers.
const (
	ArmA = "A"
	ArmB = "B"
)

// Winner values reported by a Verdict.
const (
	WinnerA   = ArmA
	WinnerB   = ArmB
	WinnerTie = "tie"
)

// Built-in experiment, matching the production landing page test.
const (
	DefaultName         = "landing_page_conversion_test"
	DefaultUnitPrice    = 39.90
	DefaultTrafficSplit = 50
)

// Arm describes one variant of an experiment.
type Arm struct {
	ID          string `yaml:"id" json:"id"`
	Route       string `yaml:"route" json:"route"`
	Description string `yaml:"description" json:"description"`
	PixelID     string `yaml:"pixel_id" json:"pixelId"`
}

// Experiment is a configured A/B test.
type Experiment struct {
	Name      string  `yaml:"name" json:"name"`
	UnitPrice float64 `yaml:"unit_price" json:"unitPrice"`
	// TrafficSplit is the percentage of users assigned to arm B.
	TrafficSplit int `yaml:"traffic_split" json:"trafficSplit"`
	VariantA     Arm `yaml:"variant_a" json:"variantA"`
	VariantB     Arm `yaml:"variant_b" json:"variantB"`
}

// Default returns the built-in landing page experiment.
func Default() Experiment {
	return Experiment{
		Name:         DefaultName,
		UnitPrice:    DefaultUnitPrice,
		TrafficSplit: DefaultTrafficSplit,
		VariantA: Arm{
			ID:          ArmA,
			Route:       "/resultado",
			Description: "Página de Resultado Original",
			PixelID:     "1311550759901086",
		},
		VariantB: Arm{
			ID:          ArmB,
			Route:       "/quiz-descubra-seu-estilo",
			Description: "Landing Page Quiz Estilo",
			PixelID:     "1038647624890676",
		},
	}
}

// Normalize fills arm ids left empty in configuration.
func (e *Experiment) Normalize() {
	if e.VariantA.ID == "" {
		e.VariantA.ID = ArmA
	}
	if e.VariantB.ID == "" {
		e.VariantB.ID = ArmB
	}
}

// Validate checks that an experiment can be evaluated.
func (e Experiment) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("experiment: name is required")
	}
	if e.UnitPrice < 0 {
		return fmt.Errorf("experiment %q: unit_price must not be negative", e.Name)
	}
	if e.TrafficSplit < 0 || e.TrafficSplit > 100 {
		return fmt.Errorf("experiment %q: traffic_split must be 0-100, got %d", e.Name, e.TrafficSplit)
	}
	for _, a := range []Arm{e.VariantA, e.VariantB} {
		if a.Route == "" && a.PixelID == "" && a.ID == "" {
			return fmt.Errorf("experiment %q: arm needs an id, route or pixel_id", e.Name)
		}
	}
	if e.VariantA.ID != "" && strings.EqualFold(e.VariantA.ID, e.VariantB.ID) {
		return fmt.Errorf("experiment %q: arms share id %q", e.Name, e.VariantA.ID)
	}
	return nil
}
