package rl

import (
	"math/rand"

	"github.com/reflexcoder/autoagent/internal/models"
)

// Experience is one transition stored for replay.
type Experience struct {
	State     string
	Action    models.Action
	Reward    float64
	NextState string
	Done      bool
}

// ReplayBuffer is a fixed-capacity ring buffer of experiences. The
// oldest entries are overwritten once the buffer is full. Not safe for
// concurrent use; the learner serializes access.
type ReplayBuffer struct {
	buf  []Experience
	next int
	full bool
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReplayBuffer{buf: make([]Experience, capacity)}
}

func (b *ReplayBuffer) Add(exp Experience) {
	b.buf[b.next] = exp
	b.next++
	if b.next == len(b.buf) {
		b.next = 0
		b.full = true
	}
}

func (b *ReplayBuffer) Len() int {
	if b.full {
		return len(b.buf)
	}
	return b.next
}

// Sample draws up to n experiences uniformly with replacement.
func (b *ReplayBuffer) Sample(n int, rng *rand.Rand) []Experience {
	size := b.Len()
	if size == 0 || n <= 0 {
		return nil
	}
	if n > size {
		n = size
	}
	out := make([]Experience, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.buf[rng.Intn(size)])
	}
	return out
}
