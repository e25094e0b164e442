// Package engine wires all Approve subsystems together and provides the
// primary application-level API for defining and running approval
// workflows.
//
// The engine package exists to break a fundamental import cycle: the root
// approve package defines Entity (imported by definition, instance, task,
// etc.) and therefore cannot import those packages back. Engine sits above
// all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	o, err := approve.New(
//	    approve.WithStore(pgStore),
//	    approve.WithResolver(directoryResolver),
//	    approve.WithScanInterval(30*time.Second),
//	)
//
//	eng, err := engine.Build(o,
//	    engine.WithExtension(myExtension),
//	)
//
// # Defining Workflows
//
//	defID, err := eng.RegisterDefinition(ctx, &definition.Definition{
//	    TenantID:     "acme",
//	    Name:         "invoice approval",
//	    WorkflowType: "invoice",
//	    Steps: []definition.Step{
//	        {Order: 1, Name: "manager sign-off", Required: true,
//	            Approver: definition.ByRole("manager")},
//	        {Order: 2, Name: "finance sign-off", Required: true,
//	            Approver: definition.ByRole("finance"),
//	            Timeout:  48 * time.Hour,
//	            Escalation: definition.ByRole("cfo")},
//	    },
//	})
//	err = eng.ActivateDefinition(ctx, defID)
//
// # Running Instances
//
//	inst, err := eng.StartWorkflow(ctx, defID, "INV-123", "Invoice", "alice", instance.CreateOpts{})
//
//	// Approvers act on their tasks:
//	_, err = eng.CompleteTask(ctx, taskID, "approved", "looks good", nil)
//
// # Options
//
//   - [WithExtension] — register a lifecycle extension
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
