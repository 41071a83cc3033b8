// Package stream walks a latent frame range in overlapping, left-padded
// windows and stitches the decoded windows back into one continuous signal.
package stream

import (
	"fmt"
	"iter"
)

// Chunk is one decoder request. The decoder sees frames
// [FirstFrame, FirstFrame+Length); only [Start, End) is new output; the
// leading Start-FirstFrame frames are left context that gets discarded.
type Chunk struct {
	Index      int
	FirstFrame int
	Length     int
	Start      int
	End        int
}

// Discard is the number of left-context frames to drop from the decoded chunk.
func (c Chunk) Discard() int {
	return c.Start - c.FirstFrame
}

func (c Chunk) DiscardSamples(hopLength int) int {
	return c.Discard() * hopLength
}

// Frames is the number of frames this chunk contributes to the output.
func (c Chunk) Frames() int {
	return c.End - c.Start
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d [%d,+%d) out [%d,%d)", c.Index, c.FirstFrame, c.Length, c.Start, c.End)
}

// Scheduler splits a frame range into chunks of ChunkFrames new frames, each
// preceded by up to PaddingFrames frames of re-decoded left context.
type Scheduler struct {
	ChunkFrames   int
	PaddingFrames int
}

func NewScheduler(chunkFrames, paddingFrames int) (Scheduler, error) {
	if chunkFrames < 1 {
		return Scheduler{}, fmt.Errorf("chunk frames must be at least 1, got %d", chunkFrames)
	}
	if paddingFrames < 0 {
		return Scheduler{}, fmt.Errorf("padding frames must be non-negative, got %d", paddingFrames)
	}
	return Scheduler{ChunkFrames: chunkFrames, PaddingFrames: paddingFrames}, nil
}

// Batch returns the scheduler that decodes total frames in a single chunk
// without context padding.
func Batch(total int) Scheduler {
	if total < 1 {
		total = 1
	}
	return Scheduler{ChunkFrames: total}
}

// Chunks yields the chunks covering [0, total) in increasing frame order.
// The output ranges tile [0, total) exactly. Nothing is yielded for total < 1
// or a scheduler with no chunk size.
func (s Scheduler) Chunks(total int) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if s.ChunkFrames < 1 || s.PaddingFrames < 0 {
			return
		}
		index := 0
		for start := 0; start < total; {
			firstFrame := max(start-s.PaddingFrames, 0)
			endFrame := min(start+s.ChunkFrames, total)
			c := Chunk{
				Index:      index,
				FirstFrame: firstFrame,
				Length:     endFrame - firstFrame,
				Start:      start,
				End:        endFrame,
			}
			if !yield(c) {
				return
			}
			index++
			start = endFrame
		}
	}
}

// Plan collects Chunks(total).
func (s Scheduler) Plan(total int) []Chunk {
	var chunks []Chunk
	for c := range s.Chunks(total) {
		chunks = append(chunks, c)
	}
	return chunks
}
