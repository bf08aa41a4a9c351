// Package api implements the HTTP REST API for clientledger.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                     liveness and store reachability (public)
//	POST   /api/v1/auth/login                 issue a token (public)
//	GET    /api/v1/auth/validate              check the bearer token (public)
//	POST   /api/v1/auth/register              create an account (ADMIN)
//	POST   /api/v1/auth/change-password       change the caller's password
//	POST   /api/v1/customers                  create; ?notify_to= copies a note
//	GET    /api/v1/customers                  one page; ?page= (from 0) &size=
//	GET    /api/v1/customers/all              every active customer
//	GET    /api/v1/customers/{id}             one customer
//	PUT    /api/v1/customers/{id}             replace one customer
//	DELETE /api/v1/customers/{id}             soft delete (ADMIN)
//	POST   /api/v1/customers/batch            create up to 100 (ADMIN); 207 on partial failure
//	POST   /api/v1/customers/batch/validate   dry-run a batch
//	GET    /api/v1/customers/kpis             statistics; ?notify_to= &archive=true
//	GET    /api/v1/customers/kpis/archive     archived report keys (ADMIN)
//
// Every response is a JSON envelope:
//
//	{"success": true, "message": "...", "data": {...}, "timestamp": "..."}
//
// Failures carry "error_code" and "path" instead of data, except validation
// failures, whose data maps field names to messages. Every response carries
// an X-Request-ID header.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
