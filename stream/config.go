package stream

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/matt-g-everett/spritetx/util"
)

// Payload formats for streamed frames.
const (
	FormatRGB = "rgb"
	FormatPNG = "png"
)

type Config struct {
	Spritesheet string         `yaml:"spritesheet"`
	Frames      string         `yaml:"frames"`
	FrameRate   float64        `yaml:"frameRate"`
	Background  string         `yaml:"background"`
	Watch       bool           `yaml:"watch"`
	Log         util.LogConfig `yaml:"log"`
	HTTP        struct {
		Listen string `yaml:"listen"`
	} `yaml:"http"`
	Mqtt struct {
		URL      string  `yaml:"url"`
		Username string  `yaml:"username"`
		Password string  `yaml:"password"`
		Format   string  `yaml:"format"`
		MaxFps   float64 `yaml:"maxFps"`
		Topics   struct {
			Stream  string `yaml:"stream"`
			Control string `yaml:"control"`
		} `yaml:"topics"`
	} `yaml:"mqtt"`
}

// Defaults fills in anything left empty.
func (c *Config) Defaults() {
	if c.FrameRate == 0 {
		c.FrameRate = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Mqtt.Format == "" {
		c.Mqtt.Format = FormatRGB
	}
	if c.Mqtt.MaxFps == 0 {
		c.Mqtt.MaxFps = 30
	}
	if c.Mqtt.Topics.Stream == "" {
		c.Mqtt.Topics.Stream = "spritetx/stream"
	}
	if c.Mqtt.Topics.Control == "" {
		c.Mqtt.Topics.Control = "spritetx/control"
	}
}

// Validate reports the first setting that can't be used.
func (c *Config) Validate() error {
	if c.Spritesheet == "" {
		return fmt.Errorf("spritesheet is required")
	}
	if c.Frames == "" {
		return fmt.Errorf("frames is required")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frameRate must be positive, got %v", c.FrameRate)
	}
	if c.Background != "" {
		if _, err := colorful.Hex(c.Background); err != nil {
			return fmt.Errorf("background %q: %w", c.Background, err)
		}
	}
	if c.Mqtt.Format != FormatRGB && c.Mqtt.Format != FormatPNG {
		return fmt.Errorf("mqtt format must be %q or %q, got %q", FormatRGB, FormatPNG, c.Mqtt.Format)
	}
	if c.Mqtt.MaxFps <= 0 {
		return fmt.Errorf("mqtt maxFps must be positive, got %v", c.Mqtt.MaxFps)
	}
	return nil
}
