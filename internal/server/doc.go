// Package server hosts the RTMS ingestion API behind a single HTTP
// multiplexer.
//
// The server builds a consistent middleware chain of request-id tagging,
// rate limiting, metrics, and logging so every handler shares the same
// protections and instrumentation, then mounts the webhook endpoint and the
// read/query surface described in the external interfaces.
package server
