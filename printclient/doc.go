// Package printclient is the application-facing entry point of the print
// bridge. A Manager wraps a spooler.Service and drives the full print flow:
// it validates the request, constructs the per-session document delegate,
// registers it with the spooler, presents the returned configuration handle,
// and hands back a Job for tracking and control.
//
// Layers & Roles
//
//	Manager                 -> print flow, job queries, listener registration
//	Job                     -> one created job: cached info, cancel, restart
//	JobListenerRegistration -> stable handle for one job-state subscription
//
// A Manager without a service (nil) models a platform with no print
// support: queries degrade to empty results with a warning and mutating
// operations fail with spooler.ErrUnavailable. Printing additionally
// requires a live lifecycle.Owner, the stand-in for the UI session the
// print dialog belongs to.
package printclient
