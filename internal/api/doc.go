// Package api provides the HTTP REST API and WebSocket event stream of the
// device registry.
//
// Every route except /health requires a bearer token issued by package
// auth; the token subject is the account a registration is attributed to.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
