// Package debug is the debugger orchestration core.
//
// It owns the set of debugged processes and their runtimes, app domains,
// modules and threads, across any number of engines (one per runtime kind),
// and exposes a current selection and an aggregate running/paused state to
// observers.
//
// # Architecture
//
//	┌──────────────┐  commands   ┌───────────────┐  Break/Run/...  ┌─────────┐
//	│  UI / CLI    │ ──────────▶ │   Manager     │ ──────────────▶ │ Engine  │
//	│  observers   │ ◀────────── │  (dispatcher) │ ◀────────────── │ (n)     │
//	└──────────────┘   events    └───────────────┘    messages     └─────────┘
//
// Every mutation of the object graph, and every event raised to observers,
// happens on the Manager's dispatcher goroutine. Commands called from other
// goroutines are queued and return immediately. Engines post messages to a
// per-engine sink from their own goroutines; the sink forwards them to the
// dispatcher in order.
//
// # Process States
//
//   - Starting: the engine has not reported the process yet
//   - Running: at least one engine of the process is running
//   - Paused: every engine of the process is paused
//   - Terminated: the process was removed
//
// The aggregate run state is Running when every process runs (Starting
// counts as running), Paused when every process is paused, and Mixed
// otherwise.
//
// # Selection
//
// CurrentProcess, CurrentRuntime and CurrentThread each hold a current and a
// break slot. Break slots are written only when a message pauses a process.
// Current follows the break unless the current process is another process
// that is still paused. Slots clear themselves when their object closes.
//
// # Usage
//
//	reg := engine.NewRegistry()
//	reg.Register(engine.KindDelve, dlvengine.Provider(dlvengine.Config{}))
//
//	m := debug.New(debug.Options{Registry: reg, Logger: logger})
//	m.IsRunningChanged.Subscribe(func(s debug.RunState) { ... })
//
//	err := m.Start(ctx, &engine.LaunchOptions{
//	    Runtime:  engine.KindDelve,
//	    Filename: "./bin/server",
//	    Break:    engine.BreakEntryPoint,
//	})
package debug
