// Package api defines the request, event and view types of the genflow HTTP
// API.
//
// # API Overview
//
// genflow exposes a workflow-oriented API:
//   - POST /api/v1/sessions/{sessionID}/generate starts a run and streams
//     state snapshots as Server-Sent Events
//   - POST /api/v1/sessions/{sessionID}/resume continues a checkpointed run
//   - GET  /api/v1/sessions/{sessionID} returns the stored session
//   - GET  /api/v1/approvals/{approvalID} and
//     POST /api/v1/approvals/{approvalID}/resolve drive human approval
//   - GET  /api/v1/sessions/{sessionID}/ws streams the same events over a
//     WebSocket
//   - /health, /healthz, /ready and /version report service health
//
// # Events
//
// Every stream frame carries an Event. SSE frames are written as
//
//	event: <type>
//	data: <json>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
