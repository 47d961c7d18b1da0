// Package ws implements the WebSocket hub for quizfunnel-server.
//
// Hub manages a set of connected clients and broadcasts the current
// experiment reports to all of them on a configurable interval (default 5s).
//
// New(source, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker; it blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// reports immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event":        "reports",
//	  "generated_at": "2026-05-20T12:00:00Z",
//	  "data":         [ /* one downloadable report per experiment */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream by the server.
package ws
