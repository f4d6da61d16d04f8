// Package engine wires all Corda subsystems together and provides the
// primary application-level API for registering flows and starting runs.
//
// The engine package exists to break a fundamental import cycle: the root
// corda package defines Entity and Config (imported by checkpoint, record,
// signal, etc.) and therefore cannot import those packages back. Engine
// sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	node, err := corda.New(
//	    corda.WithStore(memory.New()),
//	    corda.WithConcurrency(20),
//	)
//
//	eng, err := engine.Build(node,
//	    engine.WithExtension(myExtension),
//	    engine.WithInterceptor(transition.Timeout(30*time.Second)),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	)
//
// # Registering Flows and Starting Runs
//
//	engine.Register(eng, &flow.Definition[Settlement]{
//	    Name: "settle-payment",
//	    Step: settleStep,
//	})
//
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	runID, err := engine.StartRun(ctx, eng, "settle-payment", Settlement{Amount: 100})
//
// # Signals and Records
//
//	// Wake runs parked on a wait key.
//	woken, err := eng.Signal(ctx, "approval:order-7", []byte(`{"ok":true}`))
//
//	// Await a record another run will produce.
//	fut, err := eng.Records().AwaitKey(ctx, "receipt:order-7")
//
// # Options
//
//   - [WithExtension] — register a lifecycle extension
//   - [WithInterceptor] — add an interceptor to the transition chain
//   - [WithBackoff] — set the storage-retry backoff strategy
//   - [WithRateLimit] — throttle transition execution node-wide
//   - [WithCodec] — set the codec for typed start payloads
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
