// Package simulate replays a solved policy on seeded hands and compares the
// empirical result with the exact expectation of the backward induction.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/engine"
)

var (
	ErrInvalidRange = errors.New("invalid nonce range")
	ErrTimeout      = errors.New("simulation timed out")
)

// Policy is what the simulator needs from a solved value table.
type Policy interface {
	Decide(k int, s blackjack.State) (blackjack.Action, error)
	Horizon() int
	InitialCost(dist blackjack.Distribution) (float64, error)
}

// Request selects the hands to play: one hand per nonce, inclusive range.
type Request struct {
	Seeds      engine.Seeds `json:"seeds"`
	NonceStart uint64       `json:"nonce_start"`
	NonceEnd   uint64       `json:"nonce_end"`
	TimeoutMs  int          `json:"timeout_ms,omitempty"`
}

// Summary aggregates a simulation. Counts are order independent, so the same
// request gives the same summary for any worker count.
type Summary struct {
	Hands       uint64  `json:"hands"`
	NotBeaten   uint64  `json:"not_beaten"`
	PlayerBusts uint64  `json:"player_busts"`
	DealerBusts uint64  `json:"dealer_busts"`
	Rate        float64 `json:"rate"`
	StdErr      float64 `json:"std_err"`
	Expected    float64 `json:"expected"`
	TimedOut    bool    `json:"timed_out,omitempty"`
}

// Deviation is how many standard errors the empirical rate is from the
// exact expectation.
func (s Summary) Deviation() float64 {
	if s.StdErr == 0 {
		return 0
	}
	return (s.Rate - s.Expected) / s.StdErr
}

// Hand is the outcome of one simulated hand.
type Hand struct {
	Nonce     uint64          `json:"nonce"`
	Player    blackjack.State `json:"player"`
	Cards     int             `json:"cards"`
	Dealer    dealer.Outcome  `json:"dealer"`
	NotBeaten bool            `json:"not_beaten"`
}

// PlayHand deals the hand for nonce: the up-card, the player's first card,
// the player's draws under the policy, then the dealer's draws.
func PlayHand(seeds engine.Seeds, nonce uint64, dist blackjack.Distribution, p Policy) (Hand, error) {
	stream := engine.NewStream(seeds, nonce, 0)

	up := stream.NextCard(dist)
	s := blackjack.InitialState(stream.NextCard(dist), up)
	k, cards := 1, 1
	for s.Playing {
		if k >= p.Horizon() {
			return Hand{}, fmt.Errorf("nonce %d: still playing at the horizon: %s", nonce, s)
		}
		a, err := p.Decide(k, s)
		if err != nil {
			return Hand{}, fmt.Errorf("nonce %d: %w", nonce, err)
		}
		card := blackjack.NoCard
		if a == blackjack.Play {
			card = stream.NextCard(dist)
			cards++
		}
		s = blackjack.NextState(s, a, card)
		k++
	}

	h := Hand{Nonce: nonce, Player: s, Cards: cards}
	node := dealer.Root(int(up))
	for !node.Terminal() {
		node = dealer.Step(node, stream.NextCard(dist))
	}
	h.Dealer = node.Final

	if !s.IsBust() {
		h.NotBeaten = h.Dealer == dealer.OutcomeBust || int(h.Dealer) <= s.Total
	}
	return h, nil
}

type job struct {
	start, end uint64
}

type counters struct {
	hands, notBeaten, playerBusts, dealerBusts uint64
}

// Simulator plays nonce ranges on a fixed worker pool.
type Simulator struct {
	Workers   int
	BatchSize uint64
	Dist      blackjack.Distribution
	Log       zerolog.Logger
}

// New returns a simulator with one worker per CPU.
func New(log zerolog.Logger) *Simulator {
	return &Simulator{
		Workers:   runtime.GOMAXPROCS(0),
		BatchSize: 1024,
		Dist:      blackjack.InfiniteDeck(),
		Log:       log.With().Str("component", "simulate").Logger(),
	}
}

// Run plays every nonce of req under p.
func (sim *Simulator) Run(ctx context.Context, req Request, p Policy) (*Summary, error) {
	if req.NonceEnd < req.NonceStart {
		return nil, ErrInvalidRange
	}
	if err := req.Seeds.Validate(); err != nil {
		return nil, err
	}
	cost, err := p.InitialCost(sim.Dist)
	if err != nil {
		return nil, err
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	start := time.Now()
	workers := max(sim.Workers, 1)
	jobs := make(chan job, workers*2)
	var c counters
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case j, ok := <-jobs:
					if !ok {
						return
					}
					if err := sim.processJob(ctx, j, req.Seeds, p, &c); err != nil {
						cancel(err)
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go sim.generateJobs(ctx, jobs, req.NonceStart, req.NonceEnd)
	wg.Wait()

	sum := &Summary{
		Hands:       atomic.LoadUint64(&c.hands),
		NotBeaten:   atomic.LoadUint64(&c.notBeaten),
		PlayerBusts: atomic.LoadUint64(&c.playerBusts),
		DealerBusts: atomic.LoadUint64(&c.dealerBusts),
		Expected:    -cost,
	}
	if sum.Hands > 0 {
		n := float64(sum.Hands)
		sum.Rate = float64(sum.NotBeaten) / n
		sum.StdErr = math.Sqrt(sum.Rate * (1 - sum.Rate) / n)
	}

	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, context.DeadlineExceeded) {
			sum.TimedOut = true
			sim.Log.Warn().Str("op", "simulate_operation").Uint64("hands", sum.Hands).Msg("simulation timed out")
			return sum, ErrTimeout
		}
		return sum, cause
	}

	sim.Log.Info().
		Str("op", "simulate_operation").
		Uint64("hands", sum.Hands).
		Float64("rate", sum.Rate).
		Float64("expected", sum.Expected).
		Float64("deviation", sum.Deviation()).
		Dur("duration", time.Since(start)).
		Msg("simulation finished")
	return sum, nil
}

func (sim *Simulator) processJob(ctx context.Context, j job, seeds engine.Seeds, p Policy, c *counters) error {
	for nonce := j.start; nonce <= j.end; nonce++ {
		if ctx.Err() != nil {
			return nil
		}
		h, err := PlayHand(seeds, nonce, sim.Dist, p)
		if err != nil {
			return err
		}
		atomic.AddUint64(&c.hands, 1)
		if h.NotBeaten {
			atomic.AddUint64(&c.notBeaten, 1)
		}
		if h.Player.IsBust() {
			atomic.AddUint64(&c.playerBusts, 1)
		}
		if h.Dealer == dealer.OutcomeBust {
			atomic.AddUint64(&c.dealerBusts, 1)
		}
		if nonce == math.MaxUint64 {
			break
		}
	}
	return nil
}

func (sim *Simulator) generateJobs(ctx context.Context, jobs chan<- job, start, end uint64) {
	defer close(jobs)

	batch := sim.BatchSize
	if batch == 0 {
		batch = 1024
	}
	for current := start; current <= end; {
		last := current + batch - 1
		if last > end || last < current {
			last = end
		}
		select {
		case jobs <- job{start: current, end: last}:
		case <-ctx.Done():
			return
		}
		if last == end {
			return
		}
		current = last + 1
	}
}
