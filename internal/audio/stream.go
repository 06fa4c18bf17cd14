package audio

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"
)

// StreamBuffer reassembles S16LE payloads received out of order into a
// contiguous sample stream. Payloads ahead of the expected sequence are held
// until the gap fills or grows past MaxGap, at which point the missing
// sequences are counted as lost and skipped. Retained audio is bounded by
// MaxSamples, oldest samples first out.
type StreamBuffer struct {
	sampleRate int
	maxGap     uint32
	maxSamples int

	mu         sync.RWMutex
	samples    []int16
	pending    map[uint32][]int16
	started    bool
	expected   uint32
	lastUpdate time.Time

	packets    uint64
	lost       uint64
	duplicates uint64
}

// StreamStats is a snapshot of reassembly counters
type StreamStats struct {
	Packets    uint64  `json:"packets"`
	Lost       uint64  `json:"lost"`
	Duplicates uint64  `json:"duplicates"`
	LossRate   float64 `json:"loss_rate"`
	Pending    int     `json:"pending"`
	Samples    int     `json:"samples"`
	Expected   uint32  `json:"expected_sequence"`
}

const (
	// DefaultMaxGap is how many sequences a buffer waits for before skipping
	DefaultMaxGap = 20
)

// NewStreamBuffer creates a buffer keeping at most seconds of audio at sampleRate
func NewStreamBuffer(sampleRate int, seconds float64) *StreamBuffer {
	limit := int(float64(sampleRate) * seconds)
	if limit <= 0 {
		limit = sampleRate
	}
	return &StreamBuffer{
		sampleRate: sampleRate,
		maxGap:     DefaultMaxGap,
		maxSamples: limit,
		samples:    make([]int16, 0, limit),
		pending:    make(map[uint32][]int16),
	}
}

// SetMaxGap changes how far ahead of the expected sequence a payload may be
// before the gap is declared lost
func (b *StreamBuffer) SetMaxGap(n uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxGap = n
}

// Add inserts the payload carried by the packet with the given sequence
func (b *StreamBuffer) Add(sequence uint32, payload []byte) error {
	samples, err := PCMSamples(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.packets++
	b.lastUpdate = time.Now()

	if !b.started {
		b.started = true
		b.expected = sequence
	}

	// Distance ahead of expected, modulo 2^32 so wrapping counters stay ordered.
	ahead := sequence - b.expected
	switch {
	case ahead == 0:
		b.appendSamples(samples)
		b.expected++
		b.drain()
	case ahead < 1<<31:
		if _, ok := b.pending[sequence]; ok {
			b.duplicates++
			return fmt.Errorf("duplicate packet: seq=%d", sequence)
		}
		b.pending[sequence] = samples
		if ahead > b.maxGap {
			b.skipTo(sequence)
		}
	default:
		b.duplicates++
		return fmt.Errorf("late or duplicate packet: seq=%d, expected=%d", sequence, b.expected)
	}
	return nil
}

// skipTo releases held payloads before target in order, counts every missing
// sequence before target as lost and resumes there
func (b *StreamBuffer) skipTo(target uint32) {
	gap := target - b.expected

	var held []uint32
	for seq := range b.pending {
		if seq-b.expected < gap {
			held = append(held, seq)
		}
	}
	slices.SortFunc(held, func(x, y uint32) int {
		return cmp.Compare(x-b.expected, y-b.expected)
	})

	for _, seq := range held {
		b.appendSamples(b.pending[seq])
		delete(b.pending, seq)
	}
	b.lost += uint64(gap) - uint64(len(held))
	b.expected = target
	b.drain()
}

// drain appends consecutive held payloads starting at the expected sequence
func (b *StreamBuffer) drain() {
	for {
		samples, ok := b.pending[b.expected]
		if !ok {
			return
		}
		b.appendSamples(samples)
		delete(b.pending, b.expected)
		b.expected++
	}
}

func (b *StreamBuffer) appendSamples(s []int16) {
	b.samples = append(b.samples, s...)
	if over := len(b.samples) - b.maxSamples; over > 0 {
		n := copy(b.samples, b.samples[over:])
		b.samples = b.samples[:n]
	}
}

// Flush releases every held payload in sequence order, counting the gaps
// between them as lost
func (b *StreamBuffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.pending) > 0 {
		var next, best uint32
		found := false
		for seq := range b.pending {
			if d := seq - b.expected; !found || d < best {
				best, next, found = d, seq, true
			}
		}
		b.skipTo(next)
	}
}

// Samples returns a copy of the reassembled audio
func (b *StreamBuffer) Samples() []int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]int16(nil), b.samples...)
}

// WAV encodes the reassembled audio
func (b *StreamBuffer) WAV() ([]byte, error) {
	return EncodeWAV(b.Samples(), b.sampleRate)
}

// Duration returns the length of the retained audio
func (b *StreamBuffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// LastUpdate returns when a payload was last added
func (b *StreamBuffer) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// Stats returns the current reassembly counters
func (b *StreamBuffer) Stats() StreamStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var rate float64
	if total := b.packets + b.lost; total > 0 {
		rate = float64(b.lost) / float64(total) * 100
	}

	return StreamStats{
		Packets:    b.packets,
		Lost:       b.lost,
		Duplicates: b.duplicates,
		LossRate:   rate,
		Pending:    len(b.pending),
		Samples:    len(b.samples),
		Expected:   b.expected,
	}
}
