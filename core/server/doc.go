// Package server holds the HTTP server configuration.
//
// The serve command builds the Fiber app from this configuration: the listen port,
// the API key guarding every route, the request body limit and the graceful
// shutdown deadline.
package server
