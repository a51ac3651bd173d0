// Package ws implements the WebSocket hub that streams the live alert feed
// (active alerts plus aggregate stats) to connected dashboard clients on a
// fixed broadcast interval.
package ws
