// Package api implements the HTTP REST API and WebSocket server for timetabled.
//
// This package provides:
//   - REST endpoints for listing, creating, renaming and deleting timetables
//   - Event mutations (set, unset, reset, reconfig) routed to the registry
//   - State history queries
//   - WebSocket hub broadcasting timetable state changes
//   - Prometheus metrics exposition
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// When security.jwt.secret is configured, mutating endpoints require an
// "Authorization: Bearer" token minted by "timetabled token". Editing events
// needs the user role; creating, renaming and deleting stored timetables and
// reloading the configuration need admin. Reads are open. With no secret the
// API is unauthenticated, which suits a trusted LAN deployment.
//
// # Validation
//
// Times and states in request bodies are parsed here, and a reconfig body
// with two entries at the same time is rejected with 400 before the
// registry is called.
package api
