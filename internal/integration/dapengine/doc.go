// Package dapengine implements engine.Engine over a Debug Adapter Protocol
// adapter.
//
// The engine starts the adapter described by an adapters.Adapter, runs the
// initialize, launch or attach, and configurationDone handshake, and then
// translates adapter events into engine messages:
//
//	process           ProcessCreated, RuntimeLoaded
//	thread started    ThreadCreated
//	thread exited     ThreadExited
//	module new        ModuleLoaded
//	module removed    ModuleUnloaded
//	stopped           BreakRequested
//	continued         Running
//	output            ProgramOutput
//	terminated        ProcessExited, or Detached after Detach
//
// Events and commands are handled by one worker goroutine per engine, so
// messages reach the sink in adapter order.
package dapengine
