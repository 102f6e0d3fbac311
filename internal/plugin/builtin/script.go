package builtin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/remapd/internal/plugin"
)

// ScriptSlots is the number of input and output slots a script gets.
const ScriptSlots = 2

// DefaultScriptTimeout bounds a single on_input call.
const DefaultScriptTimeout = 20 * time.Millisecond

// DefaultScriptSource mirrors each input onto the matching output.
const DefaultScriptSource = `function on_input(slot, value)
  write(slot, value)
end
`

// Script runs a Lua function for every input change.
//
// The source defines on_input(slot, value) with 1-based slots and calls
// write(slot, value) to drive outputs. Only the base, table, string and
// math libraries are opened. write is ignored outside on_input so loading
// the script has no external effects.
//
// gopher-lua states are not goroutine-safe; every call holds mu.
type Script struct {
	plugin.Base

	mu      sync.Mutex
	source  string
	timeout time.Duration
	state   *lua.LState
	onInput *lua.LFunction
	ctx     context.Context
	lastErr error

	// compiled is the source the current state was built from.
	compiled string
}

// NewScript builds a two-in two-out script behavior.
func NewScript() plugin.Plugin {
	p := &Script{source: DefaultScriptSource, timeout: DefaultScriptTimeout}
	p.Init("Script")
	for i := 1; i <= ScriptSlots; i++ {
		slot := i
		p.InitializeInputMapping(func(v int64) { p.call(slot, v) })
	}
	for i := 0; i < ScriptSlots; i++ {
		p.InitializeOutputMapping()
	}
	return p
}

// Kind implements plugin.Plugin.
func (*Script) Kind() string { return KindScript }

// OnActivate compiles the source unless the current state was already
// built from it, so script globals survive repeated activation. A compile
// error is kept in LastError and leaves the behavior inert; it does not
// fail activation.
func (p *Script) OnActivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != nil && p.compiled == p.source {
		return
	}
	p.lastErr = p.load()
}

// LastError returns the most recent compile or runtime error.
func (p *Script) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close releases the Lua state.
func (p *Script) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeState()
}

func (p *Script) closeState() {
	if p.state != nil {
		p.state.Close()
		p.state = nil
		p.onInput = nil
	}
}

// load must be called with mu held.
func (p *Script) load() error {
	p.closeState()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("write", L.NewFunction(p.luaWrite))

	if err := L.DoString(p.source); err != nil {
		L.Close()
		return fmt.Errorf("script: compile: %w", err)
	}
	fn, ok := L.GetGlobal("on_input").(*lua.LFunction)
	if !ok {
		L.Close()
		return errors.New("script: on_input is not defined")
	}

	p.state = L
	p.onInput = fn
	p.compiled = p.source
	return nil
}

func (p *Script) call(slot int, value int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.ctx = ctx
	p.state.SetContext(ctx)

	err := p.state.CallByParam(lua.P{Fn: p.onInput, NRet: 0, Protect: true},
		lua.LNumber(slot), lua.LNumber(value))

	p.state.RemoveContext()
	p.ctx = nil
	if err != nil {
		p.lastErr = fmt.Errorf("script: on_input(%d): %w", slot, err)
	}
}

// luaWrite is write(slot, value). It runs inside call with mu held.
func (p *Script) luaWrite(L *lua.LState) int {
	slot := L.CheckInt(1)
	value := L.CheckNumber(2)
	if p.ctx == nil {
		return 0
	}
	outputs := p.Outputs()
	if slot < 1 || slot > len(outputs) {
		L.ArgError(1, fmt.Sprintf("output slot must be 1..%d", len(outputs)))
		return 0
	}
	p.WriteOutput(p.ctx, outputs[slot-1], int64(value))
	return 0
}

// Source returns the Lua source.
func (p *Script) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Settings implements plugin.Configurable.
func (p *Script) Settings() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"source":     p.source,
		"timeout_ms": p.timeout.Milliseconds(),
	}
}

// ApplySettings implements plugin.Configurable. The new source is compiled
// on next activation.
func (p *Script) ApplySettings(s map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := s["source"]; ok {
		src, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: source must be a string, got %T", plugin.ErrInvalidSetting, v)
		}
		p.source = src
	}
	if v, ok := s["timeout_ms"]; ok {
		ms, err := toFloat("timeout_ms", v)
		if err != nil {
			return err
		}
		if ms <= 0 {
			return fmt.Errorf("%w: timeout_ms must be positive", plugin.ErrInvalidSetting)
		}
		p.timeout = time.Duration(ms) * time.Millisecond
	}
	return nil
}
