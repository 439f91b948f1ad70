// Package tracestore catalogues exported golden traces in SQLite.
//
// The trace files themselves live on disk next to the database; the catalog
// keeps one row per eval id with the session, agent and file path so traces
// can be listed, re-read and pruned without scanning the directory.
package tracestore
