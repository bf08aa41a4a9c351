// Package ws streams the customer statistics report over WebSocket.
//
// New(source, interval, origins, metrics) creates a Hub.
// Hub.Run(ctx) starts the broadcast loop and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.Trigger() requests an immediate broadcast; customer writes call it.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// report immediately on connect, then streams updates.
//
// Message format sent to clients:
//
//	{
//	  "event": "kpis",
//	  "data":  { /* same schema as GET /api/v1/customers/kpis */ }
//	}
//
// The server mounts the hub at /ws/kpis behind token authentication.
package ws
