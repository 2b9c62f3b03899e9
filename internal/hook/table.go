package hook

import (
	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/engine"
	lua "github.com/yuin/gopher-lua"
)

// messageTable converts args into the table passed to on_message.
func messageTable(L *lua.LState, args *debug.MessageEventArgs) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("type", lua.LString(engine.Name(args.Message)))

	flags := args.Message.MessageFlags()
	t.RawSetString("suspended", lua.LBool(flags.Suspended))
	t.RawSetString("pause", lua.LBool(args.Pause))

	if p := args.Process; p != nil {
		t.RawSetString("pid", lua.LNumber(p.PID()))
		t.RawSetString("process", lua.LString(p.Name()))
	}
	if rt := args.Runtime; rt != nil {
		t.RawSetString("runtime", lua.LString(rt.Name()))
		t.RawSetString("kind", lua.LString(rt.Kind()))
	}
	if th := args.Thread; th != nil {
		t.RawSetString("thread", lua.LNumber(th.EngineID()))
	}

	switch m := args.Message.(type) {
	case *engine.ProcessCreated:
		t.RawSetString("name", lua.LString(m.Name))
	case *engine.LaunchFailed:
		if m.Err != nil {
			t.RawSetString("error", lua.LString(m.Err.Error()))
		}
	case *engine.ProcessExited:
		t.RawSetString("exit_code", lua.LNumber(m.ExitCode))
	case *engine.RuntimeLoaded:
		t.RawSetString("name", lua.LString(m.Runtime.Name))
		t.RawSetString("version", lua.LString(m.Runtime.Version))
	case *engine.AppDomainLoaded:
		t.RawSetString("id", lua.LNumber(m.AppDomain.ID))
		t.RawSetString("name", lua.LString(m.AppDomain.Name))
	case *engine.AppDomainUnloaded:
		t.RawSetString("id", lua.LNumber(m.ID))
	case *engine.ModuleLoaded:
		t.RawSetString("id", lua.LString(m.Module.ID))
		t.RawSetString("name", lua.LString(m.Module.Name))
		t.RawSetString("filename", lua.LString(m.Module.Filename))
		t.RawSetString("is_exe", lua.LBool(m.Module.IsExe))
	case *engine.ModuleUnloaded:
		t.RawSetString("id", lua.LString(m.ID))
	case *engine.ThreadCreated:
		t.RawSetString("id", lua.LNumber(m.Thread.ID))
		t.RawSetString("name", lua.LString(m.Thread.Name))
	case *engine.ThreadExited:
		t.RawSetString("id", lua.LNumber(m.ID))
		t.RawSetString("exit_code", lua.LNumber(m.ExitCode))
	case *engine.BreakRequested:
		t.RawSetString("id", lua.LNumber(m.ThreadID))
		t.RawSetString("reason", lua.LString(m.Reason))
	case *engine.ProgramOutput:
		t.RawSetString("category", lua.LString(m.Category))
		t.RawSetString("text", lua.LString(m.Text))
	}
	return t
}
