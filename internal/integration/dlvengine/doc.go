// Package dlvengine implements engine.Engine over a headless Delve server.
//
// Launch options run "dlv exec" and attach options "dlv attach"; an attach
// address connects to a server that is already listening. The engine
// talks to the server through the rpc2 JSON-RPC client.
//
// A headless server starts with the debuggee halted, so the start
// messages are posted as suspended and handed out one per Run, letting
// the manager apply the start break policy before the debuggee executes.
package dlvengine
