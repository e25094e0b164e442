// Package audithook is an Approve extension that bridges lifecycle events
// to an immutable audit trail backend such as Chronicle.
//
// Every workflow and task lifecycle hook emits a structured audit event
// through the [Recorder] interface. The extension assigns appropriate
// severity levels (info for normal operations, warning for escalations,
// critical for terminal failures) and rich metadata (entity reference,
// assignee, elapsed time, reasons).
//
// # Usage with Chronicle
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return chronicle.Info(ctx, evt.Action, evt.Resource, evt.ResourceID).
//	        Category(evt.Category).
//	        Outcome(evt.Outcome).
//	        Record()
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionWorkflowFailed,
//	        audithook.ActionTaskEscalated,
//	        audithook.ActionTaskOverdue,
//	    ),
//	)
package audithook
