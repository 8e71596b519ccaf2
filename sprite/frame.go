package sprite

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedFrameList is returned when a FrameList cannot drive playback.
var ErrMalformedFrameList = errors.New("malformed frame list")

// BlitOp copies one rectangle of the spritesheet onto the surface.
type BlitOp struct {
	DestX int
	DestY int
	SrcX1 int
	SrcY1 int
	SrcX2 int
	SrcY2 int
}

// Width of the copied rectangle.
func (b BlitOp) Width() int {
	return b.SrcX2 - b.SrcX1
}

// Height of the copied rectangle.
func (b BlitOp) Height() int {
	return b.SrcY2 - b.SrcY1
}

// UnmarshalJSON reads the [destX, destY, srcX1, srcY1, srcX2, srcY2] form.
func (b *BlitOp) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 6 {
		return fmt.Errorf("%w: blit op has %d values, want 6", ErrMalformedFrameList, len(v))
	}

	*b = BlitOp{v[0], v[1], v[2], v[3], v[4], v[5]}
	return nil
}

// MarshalJSON writes the six-number array form.
func (b BlitOp) MarshalJSON() ([]byte, error) {
	return json.Marshal([6]int{b.DestX, b.DestY, b.SrcX1, b.SrcY1, b.SrcX2, b.SrcY2})
}

// Frame is a batch of blit operations due OffsetMs after the loop starts.
type Frame struct {
	OffsetMs int64
	Changes  []BlitOp
}

// Offset returns OffsetMs as a duration.
func (f Frame) Offset() time.Duration {
	return time.Duration(f.OffsetMs) * time.Millisecond
}

// UnmarshalJSON reads the [offsetMillis, [[...], ...]] form.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var v []json.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("%w: frame has %d elements, want 2", ErrMalformedFrameList, len(v))
	}

	var out Frame
	if err := json.Unmarshal(v[0], &out.OffsetMs); err != nil {
		return fmt.Errorf("frame offset: %w", err)
	}
	if err := json.Unmarshal(v[1], &out.Changes); err != nil {
		return fmt.Errorf("frame changes: %w", err)
	}

	*f = out
	return nil
}

// MarshalJSON writes the two-element array form.
func (f Frame) MarshalJSON() ([]byte, error) {
	changes := f.Changes
	if changes == nil {
		changes = []BlitOp{}
	}
	return json.Marshal([]interface{}{f.OffsetMs, changes})
}

// FrameList is the ordered, immutable list of frames for one animation.
type FrameList []Frame

// Validate checks the invariants playback relies on.
func (l FrameList) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: no frames", ErrMalformedFrameList)
	}
	if len(l[0].Changes) == 0 {
		return fmt.Errorf("%w: first frame has no changes", ErrMalformedFrameList)
	}

	var prev int64
	for i, f := range l {
		if f.OffsetMs < 0 {
			return fmt.Errorf("%w: frame %d has negative offset %d", ErrMalformedFrameList, i, f.OffsetMs)
		}
		if i > 0 && f.OffsetMs < prev {
			return fmt.Errorf("%w: frame %d offset %d is before %d", ErrMalformedFrameList, i, f.OffsetMs, prev)
		}
		prev = f.OffsetMs

		for j, op := range f.Changes {
			if op.Width() < 0 || op.Height() < 0 {
				return fmt.Errorf("%w: frame %d change %d has inverted source rect", ErrMalformedFrameList, i, j)
			}
		}
	}

	if w, h := l.SurfaceSize(); w == 0 || h == 0 {
		return fmt.Errorf("%w: first change is %dx%d", ErrMalformedFrameList, w, h)
	}

	return nil
}

// SurfaceSize is the size of the first change of the first frame, which
// covers the whole surface.
func (l FrameList) SurfaceSize() (width, height int) {
	first := l[0].Changes[0]
	return first.Width(), first.Height()
}

// Duration is the nominal length of one loop iteration.
func (l FrameList) Duration() time.Duration {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Offset() - l[0].Offset()
}
