/*
Package logstream carries the per-run task transcript.

The transcript is what the task's submitter reads back: the claim
header, everything the container printed, schema errors when the
payload was invalid, and the result footer. Its contract is stricter
than ordinary logging in two ways:

  - Hold then release. The stream starts held. The orchestrator writes
    the header immediately after claiming, but consumers (the live log
    file, upload pipelines) only attach while the run is being linked
    and created. Held bytes buffer in order and flush to the attached
    consumers at Release, so the header is never emitted into the void.

  - Complete delivery. End blocks until every byte written before it
    has reached every live consumer. A slow consumer delays End; it
    never loses lines. A consumer whose Write fails is dropped and the
    failure is reported by End, after the remaining consumers have
    received everything.

One pump goroutine applies attaches, writes, release, and end in
submission order, which yields total ordering across concurrent
writers without any ordering bookkeeping.

Usage mirrors a run's life:

	stream := logstream.New()
	stream.Write(header)        // buffered, stream still held
	stream.Attach(liveLogFile)  // consumer joins during created hooks
	stream.Release()            // header flushes, stream goes live
	// ... container output streams through ...
	stream.Write(footer)
	err := stream.End()         // resolves after full delivery
*/
package logstream
