// Package engine defines the contract between the debugger session manager
// and the engines that talk to debuggees.
//
// An Engine drives one debuggee for one runtime kind. Commands such as Break,
// Run, Detach and Terminate return as soon as the request has been issued;
// their completion is reported later as a Message posted to the Sink that was
// handed to Start. Engines may post from any goroutine, but messages from one
// engine must be posted in the order the engine observed them.
//
// Providers are registered per runtime Kind in a Registry. The manager picks
// the provider whose kind matches StartOptions.RuntimeKind and passes the
// options through unmodified.
package engine
