// Package server provides the WebSocket gateway that call participants
// connect to, and the HTTP API for monitoring and management.
package server
