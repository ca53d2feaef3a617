// Package pacer makes pacing and retrying remote-client calls easy. It
// backs each remote client's retryable-call wrapper, generalized from a
// single-provider pacer into one usable by the Drive client, the Graph
// client, and directory-listing retries alike.
package pacer

import (
	"sync"
	"time"
)

// State represents the public Pacer state passed to the configured
// Calculator.
type State struct {
	SleepTime          time.Duration // current time to sleep before adding the pacer token back
	ConsecutiveRetries int           // number of consecutive retries, 0 when the last invoker call returned false
	LastError          error         // the error returned by the last invoker call or nil
}

// Calculator is a generic calculation function for a Pacer.
type Calculator interface {
	// Calculate takes the current Pacer state and returns the sleep time
	// after which the next Pacer call will be done.
	Calculate(state State) time.Duration
}

// Pacer allows retrying calls with a configurable delay in between.
type Pacer struct {
	pacerOptions
	mu         sync.Mutex    // protecting reads/writes
	pacer      chan struct{} // to pace the operations
	connTokens chan struct{} // connection tokens
	state      State
}

type pacerOptions struct {
	maxConnections int
	retries        int
	calculator     Calculator
	invoker        InvokerFunc
}

// InvokerFunc is the signature of the wrapper function used to invoke the
// target function in Pacer.
type InvokerFunc func(try, tries int, f Paced) (bool, error)

// Option configures a Pacer in New.
type Option func(*pacerOptions)

// CalculatorOption sets a Calculator for the new Pacer.
func CalculatorOption(c Calculator) Option {
	return func(p *pacerOptions) { p.calculator = c }
}

// RetriesOption sets the number of retries for the new Pacer.
func RetriesOption(retries int) Option {
	return func(p *pacerOptions) { p.retries = retries }
}

// MaxConnectionsOption sets the number of concurrent connections for the
// new Pacer.
func MaxConnectionsOption(maxConnections int) Option {
	return func(p *pacerOptions) { p.maxConnections = maxConnections }
}

// InvokerOption sets the invoker func wrapping the inner function for the
// pacer.
func InvokerOption(i InvokerFunc) Option {
	return func(p *pacerOptions) { p.invoker = i }
}

// Paced is the internal interface for calls made through the pacer.
type Paced func() (bool, error)

// New creates a Pacer with default values and applies options. Unlike the
// teacher's Google-specific constructor, the defaults here (8 connections,
// 10 retries, 10ms–2s backoff) are not provider-bound; each caller (Drive
// client, Graph client, directory listing retry) overrides what it needs
// via Option.
func New(options ...Option) *Pacer {
	p := &Pacer{
		pacerOptions: pacerOptions{
			maxConnections: 8,
			retries:        10,
			calculator:     &DefaultCalculator{minSleep: 10 * time.Millisecond, maxSleep: 2 * time.Second, decayConstant: 2},
			invoker:        DefaultInvoker,
		},
	}

	for _, option := range options {
		option(&p.pacerOptions)
	}

	p.pacer = make(chan struct{}, 1)
	p.pacer <- struct{}{}
	p.connTokens = make(chan struct{}, p.maxConnections)
	for i := 0; i < p.maxConnections; i++ {
		p.connTokens <- struct{}{}
	}

	return p
}

// DefaultCalculator provides exponential-decay backoff with a floor and
// ceiling.
type DefaultCalculator struct {
	minSleep      time.Duration
	maxSleep      time.Duration
	decayConstant uint
	burst         int
}

// MinSleep sets the minimum sleep time.
func MinSleep(t time.Duration) Option {
	return func(p *pacerOptions) {
		if c, ok := p.calculator.(*DefaultCalculator); ok {
			c.minSleep = t
		}
	}
}

// MaxSleep sets the maximum sleep time.
func MaxSleep(t time.Duration) Option {
	return func(p *pacerOptions) {
		if c, ok := p.calculator.(*DefaultCalculator); ok {
			c.maxSleep = t
		}
	}
}

// DecayConstant sets the decay constant.
func DecayConstant(t uint) Option {
	return func(p *pacerOptions) {
		if c, ok := p.calculator.(*DefaultCalculator); ok {
			c.decayConstant = t
		}
	}
}

// Burst sets the burst count.
func Burst(t int) Option {
	return func(p *pacerOptions) {
		if c, ok := p.calculator.(*DefaultCalculator); ok {
			c.burst = t
		}
	}
}

// Calculate calculates the next sleep time based on the State. The first
// burst consecutive retries sleep 0, letting a caller absorb a handful of
// transient failures before backoff engages.
func (c *DefaultCalculator) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries <= c.burst {
		return 0
	}
	if state.ConsecutiveRetries == c.burst+1 {
		return c.minSleep
	}
	sleepTime := state.SleepTime << c.decayConstant
	if sleepTime < c.minSleep {
		sleepTime = c.minSleep
	}
	if c.maxSleep > 0 && sleepTime > c.maxSleep {
		sleepTime = c.maxSleep
	}
	return sleepTime
}

// DefaultInvoker is the default InvokerFunc used by Pacer.
func DefaultInvoker(try, tries int, paced Paced) (bool, error) {
	again, err := paced()
	if try >= tries {
		return false, err
	}
	return again, err
}

// Call runs f in a paced way.
//
// It calls f and then waits the appropriate time before continuing. If f
// returns true another call is scheduled after the pacing sleep.
//
// If f returns true, Call sleeps for the calculated time and repeats the
// operation, up to Retries times (10 by default). If f returns false,
// Call returns at once, whether or not f returned an error.
//
// The error returned from Call is the error (if any) from the last call
// of f.
func (p *Pacer) Call(f Paced) error {
	var (
		err                error
		again              bool
		consecutiveRetries int
	)

	for try := 0; try <= p.retries; try++ {
		p.mu.Lock()
		<-p.pacer
		<-p.connTokens
		again, err = p.invoker(consecutiveRetries, p.retries, f)
		p.connTokens <- struct{}{}
		if !again || try >= p.retries {
			p.pacer <- struct{}{}
			p.state.ConsecutiveRetries = 0
			p.state.LastError = nil
			p.mu.Unlock()
			return err
		}

		p.state.ConsecutiveRetries++
		p.state.LastError = err
		sleepTime := p.calculator.Calculate(p.state)
		p.state.SleepTime = sleepTime
		p.mu.Unlock()

		if again {
			consecutiveRetries++
		} else {
			consecutiveRetries = 0
		}

		time.Sleep(sleepTime)
		p.mu.Lock()
		p.pacer <- struct{}{}
		p.mu.Unlock()

		if !again {
			return err
		}
	}

	return err
}
