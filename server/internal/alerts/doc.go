// Package alerts evaluates rules against experiment reports and delivers
// notifications to Slack, Teams, or generic HTTP webhooks.
//
// A rule fires once per experiment, stays firing until its condition turns
// false, and cannot fire again for that experiment until its cooldown has
// passed.
package alerts
