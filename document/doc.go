// Package document is the application-facing surface of the print bridge.
// An application implements Adapter (or fills in AdapterFuncs) to produce
// printable content on demand; the bridge serializes every adapter call onto
// one goroutine and delivers a one-shot result object per layout/write
// request.
//
// # Result Contract
//
// Exactly one of Finished, Failed or Cancelled must be called on each
// LayoutResult/WriteResult, exactly once. Finished validates its input: a
// layout must carry a document descriptor and a write must report a
// non-empty page set. Violating either releases the result's resources and
// then panics, because silently dropping the error would make a programming
// mistake look like a hung print job. Calls after session teardown are
// silent no-ops; duplicate terminal calls are discarded with a diagnostic
// log.
//
// # Cancellation
//
// The context passed to OnLayout/OnWrite is cancelled when the remote side
// requests cancellation or the session is torn down. Cancellation is
// advisory: logic that honors it still completes the operation by calling
// Cancelled on its result.
package document
