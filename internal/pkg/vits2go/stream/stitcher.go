package stream

import "fmt"

// Stitcher trims the left-context samples off decoded chunks. Chunks must
// arrive in the order the scheduler produced them.
type Stitcher struct {
	hopLength int
	next      int
	samples   int
}

func NewStitcher(hopLength int) *Stitcher {
	return &Stitcher{hopLength: hopLength}
}

// Trim validates decoded against c and returns the samples belonging to
// [c.Start, c.End). The returned slice aliases decoded.
func (s *Stitcher) Trim(c Chunk, decoded []float32) ([]float32, error) {
	if c.Start != s.next {
		return nil, fmt.Errorf("out of order chunk: %v starts at frame %d, expected %d", c, c.Start, s.next)
	}
	if want := c.Length * s.hopLength; len(decoded) != want {
		return nil, fmt.Errorf("decoded %v has %d samples, expected %d", c, len(decoded), want)
	}
	out := decoded[c.DiscardSamples(s.hopLength):]
	s.next = c.End
	s.samples += len(out)
	return out, nil
}

// Frames returns the number of output frames stitched so far.
func (s *Stitcher) Frames() int {
	return s.next
}

// Samples returns the number of output samples stitched so far.
func (s *Stitcher) Samples() int {
	return s.samples
}

// Reset prepares the stitcher for the next utterance.
func (s *Stitcher) Reset() {
	s.next = 0
	s.samples = 0
}
