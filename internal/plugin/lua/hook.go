package lua

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// SuggestionHookFunc is the global a hook script must define.
const SuggestionHookFunc = "filter_suggestions"

// SuggestionHook filters completion suggestions through a Lua script.
type SuggestionHook struct {
	state  *State
	path   string
	logger *logrus.Entry
}

// LoadSuggestionHook runs the script at path and checks that it defines
// filter_suggestions.
func LoadSuggestionHook(path string, logger *logrus.Entry, opts ...StateOption) (*SuggestionHook, error) {
	h := newSuggestionHook(path, logger, opts...)
	if err := h.state.DoFile(path); err != nil {
		h.state.Close()
		return nil, fmt.Errorf("loading hook script %s: %w", path, err)
	}
	return h.checked()
}

// NewSuggestionHook creates a hook from script source. name labels the
// script in logs and errors.
func NewSuggestionHook(name, source string, logger *logrus.Entry, opts ...StateOption) (*SuggestionHook, error) {
	h := newSuggestionHook(name, logger, opts...)
	if err := h.state.DoString(source); err != nil {
		h.state.Close()
		return nil, fmt.Errorf("loading hook script %s: %w", name, err)
	}
	return h.checked()
}

func newSuggestionHook(path string, logger *logrus.Entry, opts ...StateOption) *SuggestionHook {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	h := &SuggestionHook{
		state:  NewState(opts...),
		path:   path,
		logger: logger.WithField("script", path),
	}
	h.state.RegisterModule("baton", map[string]lua.LGFunction{
		"log": h.luaLog,
	})
	h.state.L.SetGlobal("print", h.state.L.NewFunction(h.luaPrint))
	return h
}

func (h *SuggestionHook) checked() (*SuggestionHook, error) {
	if !h.state.HasFunction(SuggestionHookFunc) {
		h.state.Close()
		return nil, fmt.Errorf("%w: hook script %s does not define %s", ErrNotFunction, h.path, SuggestionHookFunc)
	}
	return h, nil
}

// FilterSuggestions calls filter_suggestions with items and returns the
// strings it produced. A nil result keeps items.
func (h *SuggestionHook) FilterSuggestions(items []string) ([]string, error) {
	var filtered []string
	err := h.state.run(func(L *lua.LState) error {
		fn := L.GetGlobal(SuggestionHookFunc)
		if fn.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %s is %s", ErrNotFunction, SuggestionHookFunc, fn.Type())
		}

		in := L.NewTable()
		for _, item := range items {
			in.Append(lua.LString(item))
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, in); err != nil {
			return err
		}
		ret := L.Get(-1)
		L.Pop(1)

		switch out := ret.(type) {
		case *lua.LNilType:
			filtered = items
		case *lua.LTable:
			filtered = make([]string, 0, out.Len())
			for i := 1; i <= out.Len(); i++ {
				s, ok := out.RawGetInt(i).(lua.LString)
				if !ok {
					return fmt.Errorf("%w: element %d is %s, want string", ErrBadResult, i, out.RawGetInt(i).Type())
				}
				filtered = append(filtered, string(s))
			}
		default:
			return fmt.Errorf("%w: %s returned %s, want table", ErrBadResult, SuggestionHookFunc, ret.Type())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filtered, nil
}

// Close releases the script's Lua state.
func (h *SuggestionHook) Close() error {
	return h.state.Close()
}

// luaLog implements baton.log(level, message).
func (h *SuggestionHook) luaLog(L *lua.LState) int {
	level, err := logrus.ParseLevel(L.CheckString(1))
	if err != nil {
		level = logrus.InfoLevel
	}
	h.logger.Log(level, L.CheckString(2))
	return 0
}

// luaPrint sends print output to the debug log instead of stdout.
func (h *SuggestionHook) luaPrint(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := range parts {
		parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
	}
	h.logger.Debug(strings.Join(parts, "\t"))
	return 0
}
