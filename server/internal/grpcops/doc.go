// Package grpcops serves the operations gRPC endpoint.
//
// The server exposes the standard grpc.health.v1 Health service, reporting
// SERVING while the store answers pings, and server reflection for tools
// such as grpcurl. Every call except the health methods needs a bearer
// token in the "authorization" metadata (see package auth).
package grpcops
