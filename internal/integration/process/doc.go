// Package process supervises the helper processes debug engines spawn: dlv
// servers and DAP adapters.
//
// A Supervisor tracks every process it started so that nothing outlives the
// debugger:
//
//	sup := process.NewSupervisor(process.WithLogger(log))
//	defer sup.Shutdown(ctx)
//
//	proc, err := sup.Start("dlv", exec.Command("dlv", "dap", "--listen", addr))
//	if err != nil {
//	    return err
//	}
//	defer proc.Stop(time.Second)
//
// Stop and Shutdown send SIGTERM first and SIGKILL when the process does
// not exit in time.
package process
