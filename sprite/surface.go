package sprite

import (
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

// DrawContext copies rectangles from a bitmap onto a surface, unscaled.
type DrawContext interface {
	CopyRect(src image.Image, srcX1, srcY1, width, height, destX, destY int)
}

// Surface is the destination an animation draws on.
type Surface interface {
	// SetSize sets the pixel dimensions, discarding current contents.
	SetSize(width, height int)
	Context() DrawContext
}

// ImageSurface is a Surface backed by an in-memory RGBA image. It is safe
// to snapshot from other goroutines while an animation draws on it.
type ImageSurface struct {
	mu            sync.RWMutex
	img           *image.RGBA
	background    colorful.Color
	hasBackground bool
}

// NewImageSurface creates an empty surface. A non-empty background is a hex
// colour ("#000000") used to clear the surface on resize; otherwise the
// surface starts transparent.
func NewImageSurface(background string) (*ImageSurface, error) {
	s := new(ImageSurface)
	s.img = image.NewRGBA(image.Rect(0, 0, 0, 0))

	if background != "" {
		c, err := colorful.Hex(background)
		if err != nil {
			return nil, err
		}
		s.background = c
		s.hasBackground = true
	}

	return s, nil
}

// SetSize reallocates the backing image.
func (s *ImageSurface) SetSize(width, height int) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if s.hasBackground {
		draw.Draw(img, img.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
	}

	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// Size returns the current pixel dimensions.
func (s *ImageSurface) Size() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Context returns the surface itself; it draws directly.
func (s *ImageSurface) Context() DrawContext {
	return s
}

// CopyRect composites the source rectangle over the surface at (destX, destY).
func (s *ImageSurface) CopyRect(src image.Image, srcX1, srcY1, width, height, destX, destY int) {
	sr := image.Rect(srcX1, srcY1, srcX1+width, srcY1+height).Add(src.Bounds().Min)

	s.mu.Lock()
	defer s.mu.Unlock()
	draw.Copy(s.img, image.Pt(destX, destY), src, sr, draw.Over, nil)
}

// Snapshot returns a copy of the current contents.
func (s *ImageSurface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// EncodePNG writes the current contents as a PNG.
func (s *ImageSurface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.Snapshot())
}

// MarshalBinary encodes the surface as a little-endian uint16 width and
// height followed by one RGB triple per pixel, row by row. Transparent
// pixels take the background colour.
func (s *ImageSurface) MarshalBinary() (data []byte, err error) {
	img := s.Snapshot()
	b := img.Bounds()

	data = make([]byte, 4, 4+b.Dx()*b.Dy()*3)
	binary.LittleEndian.PutUint16(data[0:], uint16(b.Dx()))
	binary.LittleEndian.PutUint16(data[2:], uint16(b.Dy()))

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(img.RGBAAt(x, y))
			if !ok {
				c = s.background
			}
			r, g, bl := c.Clamped().RGB255()
			data = append(data, r, g, bl)
		}
	}

	return data, nil
}
