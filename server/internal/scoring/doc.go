// Package scoring turns quiz responses into a ranked style table and a
// final QuizResult.
//
// Every resolvable selection is worth one point. Ties on points go to the
// style whose first selection came earliest (responseIndex*stride +
// selectionIndex), then to canonical declaration order. Percentages are
// rounded half away from zero, so they need not sum to exactly 100.
//
// The engine never fails: empty input, unknown options and a nil catalogue
// all produce a fully populated table of zero scores.
package scoring
