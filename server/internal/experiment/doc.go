// Package experiment computes per-arm conversion metrics for a two-arm
// landing page experiment and a coarse significance verdict.
//
// Events are attributed to an arm by the first matcher that applies to them
// (explicit variant tag, pixel id, page route, event name suffix). The verdict
// is a pooled two-proportion z statistic bucketed into 95/90/80 or a linear
// value capped at 75. Arms with fewer than MinSampleSize visitors always
// yield a tie at zero confidence.
//
// Evaluation functions are pure. Window filtering takes the reference time
// as an argument; nothing in this package reads the clock.
package experiment
