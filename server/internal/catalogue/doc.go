// Package catalogue holds the quiz question catalogue: which questions exist,
// which of them count towards the style result, and which style each option
// awards.
//
// Catalogues are loaded from YAML (see default_catalogue.yaml for the format)
// and are immutable once built. Reloads replace the whole Catalogue.
package catalogue
