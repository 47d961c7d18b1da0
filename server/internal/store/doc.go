// Package store persists analytics events and quiz results.
//
// Memory keeps everything in process and drops events past a retention
// window. SQL stores rows through database/sql, against SQLite
// (mattn/go-sqlite3) or Postgres (lib/pq), with the record itself kept as a
// JSON payload column.
package store
