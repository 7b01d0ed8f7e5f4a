/*
Package schema validates task payloads.

The payload schema ships inside the binary (payload.json, draft-04) so
a worker always validates against the exact contract it was built for.
Validation happens after the run is claimed, not at poll time: a broken
payload still needs its run resolved, and the submitter deserves the
full list of violations in the transcript rather than a silent requeue.

Validate never returns an error. Empty payloads, non-JSON payloads, and
schema violations all come back as []ValidationError; only a schema
that fails to compile (a build defect) is an error, at NewValidator.

FormatErrors renders the block the submitter reads:

	payload format is invalid json schema errors:
	[
	  {
	    "field": "maxRunTime",
	    "kind": "invalid_type",
	    "description": "Invalid type. Expected: integer, given: string"
	  }
	]
*/
package schema
