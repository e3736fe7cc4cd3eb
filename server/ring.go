package neurales

import (
	"fmt"
	"math"
)

// RingBuffer is a fixed-capacity, multi-channel circular buffer.
// It keeps the trailing Capacity samples of every channel.
//
// Cursor is the next write position and wraps modulo Capacity.
// Filled counts samples ingested so far, capped at Capacity.
// While Filled < Capacity no wraparound has happened yet,
// so buffer order from index 0 is already chronological.
type RingBuffer struct {
	Buf      [][]float64 // [channel][Capacity]
	Capacity int
	Cursor   int
	Filled   int
}

// WindowCapacity is round(windowSeconds * sampleRate), raised to floor when floor > 0.
func WindowCapacity(windowSeconds, sampleRate float64, floor int) int {
	c := int(math.Round(windowSeconds * sampleRate))
	if c < floor {
		c = floor
	}
	if c < 1 {
		c = 1
	}
	return c
}

// NewRingBuffer allocates a zeroed buffer for the given channel count and capacity.
func NewRingBuffer(channels, capacity int) *RingBuffer {
	rb := &RingBuffer{}
	rb.Reset(channels, capacity)
	return rb
}

// Reset re-initialises the buffer with a new shape.
// Call it whenever the sample rate or channel set changes.
func (rb *RingBuffer) Reset(channels, capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	rb.Buf = make([][]float64, channels)
	for ch := range rb.Buf {
		rb.Buf[ch] = make([]float64, capacity)
	}
	rb.Capacity = capacity
	rb.Cursor = 0
	rb.Filled = 0
}

// Channels is the number of rows held.
func (rb *RingBuffer) Channels() int { return len(rb.Buf) }

// Ingest writes a channels x n chunk at the cursor.
// A write crossing the end is split into a tail copy and a head copy.
// If n exceeds Capacity only the most recent Capacity samples survive.
func (rb *RingBuffer) Ingest(chunk [][]float64) error {
	if len(chunk) != len(rb.Buf) {
		return fmt.Errorf("chunk has %d channels, buffer has %d", len(chunk), len(rb.Buf))
	}
	if len(chunk) == 0 {
		return nil
	}

	n := len(chunk[0])
	for ch := range chunk {
		if len(chunk[ch]) != n {
			return fmt.Errorf("chunk channel %d has %d samples, want %d", ch, len(chunk[ch]), n)
		}
	}
	if n == 0 {
		return nil
	}

	for ch, row := range chunk {
		rb.writeRow(rb.Buf[ch], row)
	}

	rb.Cursor = (rb.Cursor + n) % rb.Capacity
	rb.Filled = min(rb.Capacity, rb.Filled+n)
	return nil
}

// writeRow copies src into dst starting at the cursor, wrapping once at the end.
// Oversized rows are written whole segment by segment, which leaves the last
// Capacity samples in place exactly as consecutive ingests would.
func (rb *RingBuffer) writeRow(dst, src []float64) {
	pos := rb.Cursor
	for len(src) > 0 {
		tail := rb.Capacity - pos
		if len(src) <= tail {
			copy(dst[pos:], src)
			return
		}
		copy(dst[pos:], src[:tail])
		src = src[tail:]

		head := min(len(src), rb.Capacity)
		copy(dst[:head], src[:head])
		src = src[head:]
		pos = head % rb.Capacity
	}
}

// CurrentWindow returns a chronologically ordered copy of the buffered window.
// The result is channels x Filled, oldest sample at index 0.
func (rb *RingBuffer) CurrentWindow() [][]float64 {
	out := make([][]float64, len(rb.Buf))
	for ch, row := range rb.Buf {
		win := make([]float64, rb.Filled)
		if rb.Filled < rb.Capacity {
			copy(win, row[:rb.Filled])
		} else {
			// Oldest is at the cursor: tail segment then head segment
			k := copy(win, row[rb.Cursor:])
			copy(win[k:], row[:rb.Cursor])
		}
		out[ch] = win
	}
	return out
}
