/*
Package watchdog enforces run deadlines.

Every payload carries maxRunTime in seconds. The orchestrator arms the
watchdog just before starting the container and disarms it the moment
the container exits on its own. A run that outlives its deadline gets
onExpire: the orchestrator kills the container, writes the forced
timeout line to the transcript, and the resulting non-zero exit code
classifies the run as failed through the normal path.

One-shot semantics: a fired or disarmed deadline never fires again, and
re-arming replaces the previous deadline atomically (a generation
counter turns in-flight fires of the old deadline into no-ops).
*/
package watchdog
