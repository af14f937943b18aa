// Package server implements the UDP discovery listener and the HTTP
// monitoring API. The listener receives broadcast datagrams, decodes them
// concurrently, and hands results to a handler; the HTTP server exposes
// the tracked devices and service statistics.
package server
