// Package dap implements a Debug Adapter Protocol client.
//
// Messages are framed with the base protocol (Content-Length headers) and
// encoded with github.com/google/go-dap. A Transport moves whole messages;
// a Client correlates requests with responses and hands events to a single
// handler.
//
//	t, err := dap.DialTransport(ctx, "127.0.0.1:4711")
//	c := dap.NewClient(t)
//	c.OnEvent(func(e godap.EventMessage) { ... })
//	caps, err := c.Initialize(ctx, dap.DefaultInitializeArguments("dlv"))
package dap
