// Package api defines the request and response types of the relay HTTP API.
//
// # API Overview
//
// Relay exposes a RESTful API for:
//   - Session lifecycle (create, inspect, delete)
//   - Posting messages and receiving routing decisions
//   - A websocket stream of handoff events
//   - Health monitoring and metrics
//
// # Authentication
//
// When JWT auth is enabled, endpoints under /api/v1 require a bearer token:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
