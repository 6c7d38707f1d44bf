// Package spooler defines the two contract surfaces of the print bridge:
// the Service interface a client consumes from a remote print spooler, and
// the DocumentSession interface a spooler drives on the client.
//
// Layers & Roles
//
//	Service         -> create sessions, job pass-throughs, listener registration
//	DocumentSession -> the delegate's remote-callable surface (start/layout/write/finish)
//	Result senders  -> per-operation reply channels implemented by transports
//
// Implementations of Service: spoolws.Client (WebSocket wire transport) and
// spoolertest.Spooler (in-process reference used in tests and examples).
// Application code never implements DocumentSession itself; the client
// manager constructs the delegate when a print flow starts.
//
// # Cancellation
//
// Layout and write replies begin with a …Started acknowledgement carrying a
// cancel function. A transport invokes it when the remote side requests
// cancellation; the delegate surfaces it to application logic as context
// cancellation with cause ErrCancelRequested. Session teardown cancels with
// cause ErrSessionDestroyed instead.
package spooler
