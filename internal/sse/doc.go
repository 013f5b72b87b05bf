// Package sse renders Server-Sent Events wire frames.
//
// Encoding is pure: no I/O, no buffering. Callers write the returned bytes and flush.
package sse
