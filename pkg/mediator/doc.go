// Package mediator implements the exec, file-open and connect mediation
// hooks.
//
// A substrate (fanotify, or a test harness) builds a request and calls
// Mediate; the result is nil to allow or unix.EPERM to deny:
//
//	m := mediator.New(mediator.Config{}, matcher, lineageCache, channel)
//	if err := m.FileOpen(task, file); err != nil {
//	    // deny
//	}
//
// Internal failures never surface to the caller. An incomplete path, a
// policy miss, a full event channel or an unsupported address family all
// degrade to "allow, no telemetry" and are only visible through
// GetStatistics. A Block decision is enforced even when its event could
// not be recorded.
package mediator
