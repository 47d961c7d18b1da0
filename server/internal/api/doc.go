// Package api implements the HTTP REST API for quizfunnel-server.
//
// New(Deps) returns a Handler that serves:
//
//	GET  /api/v1/health                       status, experiment and question counts
//	GET  /api/v1/styles                       style enumeration with display names
//	GET  /api/v1/questions                    question catalogue
//	POST /api/v1/quiz/scores                  {responses} -> ranked style table
//	POST /api/v1/quiz/completeness            {responses} -> {complete, missing}
//	POST /api/v1/quiz/selections              one multi-select answer merged into a set
//	POST /api/v1/quiz/results                 persisted QuizResult (201); 422 if incomplete
//	GET  /api/v1/quiz/results/{id}            persisted result; 404 if unknown
//	POST /api/v1/events                       batch event intake; 429 when throttled
//	GET  /api/v1/experiments                  experiments with their current verdict
//	GET  /api/v1/experiments/{name}/report    report + insights; ?range=, ?download=1
//	GET  /api/v1/experiments/{name}/assign    deterministic arm for ?user_key=
//	GET  /api/v1/alerts                       firing and recently resolved alerts
//	GET  /metrics, /api/v1/metrics            Prometheus text exposition
//
// Every endpoint returns 405 for the wrong method and {"error": msg} bodies
// on failure. The catalogue and the experiment list are swapped atomically
// by SetCatalogue and SetExperiments when the config is reloaded.
// Authentication is applied by the caller (see package auth).
package api
