// Package lua runs user Lua scripts that customize completion results.
//
// Scripts run in a sandboxed gopher-lua state: only the base, table,
// string and math libraries are opened, and dofile, loadfile, load and
// loadstring are removed. Each call is bounded by a timeout.
//
// A suggestion hook script defines a global filter_suggestions function
// that takes the filtered suggestion array and returns a new one:
//
//	function filter_suggestions(items)
//	    local out = {}
//	    for _, s in ipairs(items) do
//	        if not s:find("^operator") then
//	            table.insert(out, s)
//	        end
//	    end
//	    return out
//	end
//
// Returning nil keeps the list unchanged. The script may log through
// baton.log(level, message).
package lua
