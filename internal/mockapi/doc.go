// Package mockapi implements an in-memory media backend for local
// development and end-to-end tests.
//
// It serves the same routes as the real service under /api/v1: login and
// logout with HS256 JWTs, parse, download submission, file retrieval and
// the websocket progress channel. Submitted tasks advance on a timer and
// push progress to every connection of the owning user.
//
//	srv := mockapi.New(mockapi.Options{StepInterval: 200 * time.Millisecond})
//	defer srv.Close()
//	http.ListenAndServe(":8080", srv.Handler())
//
// Progress payloads alternate between numeric and textual statuses so
// clients exercise both encodings.
package mockapi
