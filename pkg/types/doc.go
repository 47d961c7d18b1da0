// Package types defines the shared Go types used by the scoring engine, the
// experiment evaluator and the server around them: the closed StyleTag
// enumeration, quiz responses and analytics events.
package types
