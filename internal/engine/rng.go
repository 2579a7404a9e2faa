// Package engine produces reproducible card draws from a seed pair. Every
// hand is identified by a nonce; its cards are read from an HMAC-SHA256
// byte stream so replaying a nonce deals the same hand.
package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"hash"
	"strconv"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

var ErrEmptySeed = errors.New("server seed must not be empty")

// Seeds is the seed pair a simulation is keyed on.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// Validate checks the server seed is set.
func (s Seeds) Validate() error {
	if s.Server == "" {
		return ErrEmptySeed
	}
	return nil
}

// Stream is a byte stream for one nonce. Each 32-byte round is
// HMAC-SHA256(server, "client:nonce:round").
type Stream struct {
	mac    hash.Hash
	client string
	nonce  uint64
	round  uint64
	pos    int
	buf    [sha256.Size]byte
	msg    []byte
}

// NewStream starts the stream for nonce at byte offset cursor.
func NewStream(seeds Seeds, nonce, cursor uint64) *Stream {
	s := &Stream{
		mac:    hmac.New(sha256.New, []byte(seeds.Server)),
		client: seeds.Client,
		nonce:  nonce,
		round:  cursor / sha256.Size,
		pos:    int(cursor % sha256.Size),
	}
	s.fill()
	return s
}

func (s *Stream) fill() {
	s.msg = append(s.msg[:0], s.client...)
	s.msg = append(s.msg, ':')
	s.msg = strconv.AppendUint(s.msg, s.nonce, 10)
	s.msg = append(s.msg, ':')
	s.msg = strconv.AppendUint(s.msg, s.round, 10)

	s.mac.Reset()
	s.mac.Write(s.msg)
	s.mac.Sum(s.buf[:0])
}

// Next returns the next byte, advancing to a new round when one is used up.
func (s *Stream) Next() byte {
	if s.pos >= len(s.buf) {
		s.round++
		s.pos = 0
		s.fill()
	}
	b := s.buf[s.pos]
	s.pos++
	return b
}

// NextFloat reads four bytes as a base-256 fraction in [0, 1).
func (s *Stream) NextFloat() float64 {
	f, div := 0.0, 1.0
	for i := 0; i < 4; i++ {
		div *= 256
		f += float64(s.Next()) / div
	}
	return f
}

// NextCard draws a card through the distribution's cumulative weights.
func (s *Stream) NextCard(dist blackjack.Distribution) blackjack.Card {
	return dist.CardAt(s.NextFloat())
}

// Floats returns count floats for nonce starting at cursor.
func Floats(seeds Seeds, nonce, cursor uint64, count int) []float64 {
	s := NewStream(seeds, nonce, cursor)
	out := make([]float64, count)
	for i := range out {
		out[i] = s.NextFloat()
	}
	return out
}
