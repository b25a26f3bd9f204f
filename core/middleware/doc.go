// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting the sync endpoints.
//   - rayid: a unique request id (RayID) for every incoming request, stored in the
//     context locals and echoed in the X-Ray-ID response header.
//
// RayID must be registered first so that every later log line can carry it.
package middleware
