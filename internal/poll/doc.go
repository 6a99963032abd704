// Package poll waits for a backend task to reach a terminal status.
//
// A poll cycle issues one status query per iteration and waits between
// queries according to the request count:
//
//	requests 1-3    3s
//	requests 4-10   10s
//	requests 11+    30s
//
// Three limits run side by side: the backend's own terminal status
// (completed or failed), an iteration cap (20 by default), and a wall-clock
// ceiling (3h by default). A failed query ends the cycle immediately with an
// Errored outcome; it is not retried.
package poll
