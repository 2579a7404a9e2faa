// Package scripting runs a user strategy written in JavaScript. The script
// defines decide(total, soft, upCard, timestep) and returns "hit" or
// "stand" (or "play"/"stop").
package scripting

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 100 * time.Millisecond
)

var ErrNoDecide = errors.New("script does not define decide()")

// Base supplies what a script cannot: the horizon and the optimal value
// the simulator reports next to the script's rate.
type Base interface {
	Horizon() int
	InitialCost(dist blackjack.Distribution) (float64, error)
}

// Policy adapts a script to the simulator. A goja runtime is not safe for
// concurrent use, so calls are serialized.
type Policy struct {
	Base

	mu      sync.Mutex
	runtime *goja.Runtime
	decide  goja.Callable
}

// Load runs source once and binds its decide function.
func Load(source string, base Base) (*Policy, error) {
	rt := goja.New()
	sandbox(rt)

	p := &Policy{Base: base, runtime: rt}
	err := p.withTimeout(scriptInitTimeout, func() error {
		if _, err := rt.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fn := rt.Get("decide")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, ErrNoDecide
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("decide is not a function")
	}
	p.decide = callable
	return p, nil
}

// sandbox removes globals a strategy has no business calling.
func sandbox(rt *goja.Runtime) {
	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		rt.Set(name, goja.Undefined())
	}
	rt.Set("HIT", "hit")
	rt.Set("STAND", "stand")
}

// Decide asks the script for the action in s at timestep k.
func (p *Policy) Decide(k int, s blackjack.State) (blackjack.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out goja.Value
	err := p.withTimeout(scriptCallTimeout, func() error {
		v, err := p.decide(goja.Undefined(),
			p.runtime.ToValue(s.Total),
			p.runtime.ToValue(s.UsableAce),
			p.runtime.ToValue(s.UpCard),
			p.runtime.ToValue(k))
		if err != nil {
			return fmt.Errorf("decide(%s) error: %w", s, err)
		}
		out = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return 0, fmt.Errorf("decide(%s) returned nothing", s)
	}
	return blackjack.ParseAction(out.String())
}

// withTimeout interrupts the runtime if fn runs longer than timeout.
func (p *Policy) withTimeout(timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, func() {
		p.runtime.Interrupt("script execution timeout")
	})
	err := fn()
	if !timer.Stop() {
		p.runtime.ClearInterrupt()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("script timed out: %w", err)
	}
	return err
}
