// Package receiver is the intake path for funnel events posted by the
// landing pages and the quiz.
//
// Receiver.Receive takes one token from a golang.org/x/time/rate bucket
// (ErrRateLimited when empty), enforces the batch cap, then drops events with
// a blank or oversized name, a zero timestamp, or a timestamp more than five
// minutes ahead of the server clock. The survivors are appended to the event
// store in a single call. Authentication happens upstream in the HTTP
// middleware (see package auth).
package receiver
