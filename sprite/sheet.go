package sprite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"
)

// SheetSprite is a packed sprite's rectangle inside the spritesheet.
type SheetSprite struct {
	ID int `json:"id"`
	Y1 int `json:"y1"`
	X1 int `json:"x1"`
	Y2 int `json:"y2"`
	X2 int `json:"x2"`
}

// SheetChange places sprite ID at (X, Y) on the surface.
type SheetChange struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

// SheetFrame is one captured frame, Timestamp in unix milliseconds.
type SheetFrame struct {
	Timestamp int64         `json:"timestamp"`
	Changes   []SheetChange `json:"changes"`
}

// SheetData is the data.json written next to a packed spritesheet.
type SheetData struct {
	Frames  []SheetFrame  `json:"frames"`
	Sprites []SheetSprite `json:"sprites"`
}

// FrameList resolves every change against the sprite table.
func (d *SheetData) FrameList() (FrameList, error) {
	sprites := lo.KeyBy(d.Sprites, func(s SheetSprite) int { return s.ID })

	frames := make(FrameList, 0, len(d.Frames))
	for i, sf := range d.Frames {
		f := Frame{OffsetMs: sf.Timestamp, Changes: make([]BlitOp, 0, len(sf.Changes))}
		for _, c := range sf.Changes {
			s, ok := sprites[c.ID]
			if !ok {
				return nil, fmt.Errorf("%w: frame %d references unknown sprite %d", ErrMalformedFrameList, i, c.ID)
			}
			f.Changes = append(f.Changes, BlitOp{
				DestX: c.X,
				DestY: c.Y,
				SrcX1: s.X1,
				SrcY1: s.Y1,
				SrcX2: s.X2,
				SrcY2: s.Y2,
			})
		}
		frames = append(frames, f)
	}

	return frames, nil
}

// ParseFrames decodes either the tuple form of a FrameList or packed
// SheetData, and validates the result.
func ParseFrames(data []byte) (FrameList, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedFrameList)
	}

	var frames FrameList
	if trimmed[0] == '{' {
		var sheet SheetData
		if err := json.Unmarshal(trimmed, &sheet); err != nil {
			return nil, fmt.Errorf("decode sheet data: %w", err)
		}

		var err error
		frames, err = sheet.FrameList()
		if err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(trimmed, &frames); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}

	if err := frames.Validate(); err != nil {
		return nil, err
	}
	return frames, nil
}

// LoadFrames reads a frames file from disk.
func LoadFrames(path string) (FrameList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	frames, err := ParseFrames(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}
