// Package hook runs Lua scripts against engine messages.
//
// A script defines a global on_message function. It receives one table per
// message and may return true to pause the process that sent it:
//
//	function on_message(msg)
//	  if msg.type == "module_loaded" and msg.name == "plugin.so" then
//	    log("plugin loaded in " .. msg.pid)
//	    return true
//	  end
//	end
//
// Only the base, table, string and math libraries are available. Each call
// is bounded by a timeout.
package hook
