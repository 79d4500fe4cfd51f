// Package server exposes a local store and a now-playing surface over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified patterns on an [http.ServeMux].
//
// # Identity
//
// [Identity] maps an administrator bearer token onto the administrator's email in the request context.
// Requests without a token run as anonymous visitors; a wrong token is rejected with 401.
// The store's access rules make every decision from that identity.
//
// # Endpoints
//
//   - /sync speaks the store's websocket frame protocol (see [SyncHandler])
//   - /nowplaying streams now-playing metadata and accepts remote transport commands
//   - GET /healthz reports liveness and the number of now-playing clients
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
