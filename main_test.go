package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matt-g-everett/spritetx/sprite"
	"github.com/matt-g-everett/spritetx/stream"
	"github.com/rs/zerolog"
)

func writeSheet(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if x < 4 {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{B: 255, A: 255})
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func testAppConfig(t *testing.T) stream.Config {
	t.Helper()
	dir := t.TempDir()

	var c stream.Config
	c.Spritesheet = filepath.Join(dir, "spritesheet.png")
	c.Frames = filepath.Join(dir, "frames.json")
	c.FrameRate = 200
	c.Defaults()

	writeSheet(t, c.Spritesheet)
	frames := `[[0,[[0,0,0,0,4,4]]],[20,[[1,1,4,0,6,2]]]]`
	if err := os.WriteFile(c.Frames, []byte(frames), 0644); err != nil {
		t.Fatal(err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAppPlaysAndStops(t *testing.T) {
	a, err := newApp(testAppConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.host.Run(ctx)

	if got := a.Status().State; got != "unstarted" {
		t.Errorf("state before play = %q", got)
	}
	if err := a.play(); err != nil {
		t.Fatal(err)
	}

	if w, h := a.surface.Size(); w != 4 || h != 4 {
		t.Errorf("surface size = %dx%d, want 4x4", w, h)
	}

	waitFor(t, "a completed loop", func() bool { return a.Status().Loops > 0 })
	if got := a.Status().State; got != "running" {
		t.Errorf("state = %q, want running", got)
	}

	img := a.surface.Snapshot()
	if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel (0,0) = %v", got)
	}
	if got := img.RGBAAt(3, 3); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel (3,3) = %v", got)
	}
	// Frame 0 may have been redrawn since frame 1 last was.
	if got := img.RGBAAt(1, 1); got != (color.RGBA{B: 255, A: 255}) && got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("pixel (1,1) = %v", got)
	}

	a.handleCommand(stream.CommandStop)
	if got := a.Status().State; got != "stopped" {
		t.Errorf("state after stop = %q", got)
	}
}

func TestAppReloadReplacesScheduler(t *testing.T) {
	a, err := newApp(testAppConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.play(); err != nil {
		t.Fatal(err)
	}
	first := a.scheduler

	a.handleCommand(stream.CommandReload)
	if a.scheduler == first {
		t.Fatal("reload kept the old scheduler")
	}
	if first.State() != sprite.StateStopped {
		t.Errorf("old scheduler state = %v", first.State())
	}

	// A broken frames file leaves the current animation alone.
	current := a.scheduler
	if err := os.WriteFile(a.Config.Frames, []byte(`[]`), 0644); err != nil {
		t.Fatal(err)
	}
	a.reload()
	if a.scheduler != current || current.State() == sprite.StateStopped {
		t.Error("failed reload disturbed the running animation")
	}
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()

	if _, err := readConfig(filepath.Join(dir, "missing.yaml"), false); err != nil {
		t.Errorf("optional missing config: %v", err)
	}
	if _, err := readConfig(filepath.Join(dir, "missing.yaml"), true); err == nil {
		t.Error("required missing config: expected error")
	}

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("frames: a.json\nframeRate: 24\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := readConfig(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.Frames != "a.json" || c.FrameRate != 24 {
		t.Errorf("config = %+v", c)
	}
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.json")
	data := `{"frames":[{"timestamp":100,"changes":[{"id":0,"x":0,"y":0}]},
		{"timestamp":350,"changes":[{"id":1,"x":2,"y":3}]}],
		"sprites":[{"id":0,"x1":0,"y1":0,"x2":4,"y2":4},{"id":1,"x1":4,"y1":0,"x2":6,"y2":2}]}`
	if err := os.WriteFile(in, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"convert", in})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	want := `[[100,[[0,0,0,0,4,4]]],[350,[[2,3,4,0,6,2]]]]`
	if got := strings.TrimSpace(out.String()); got != want {
		t.Errorf("convert output = %s, want %s", got, want)
	}

	outPath := filepath.Join(dir, "frames.json")
	cmd = rootCmd()
	cmd.SetArgs([]string{"convert", in, outPath})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	frames, err := sprite.LoadFrames(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Errorf("wrote %d frames", len(frames))
	}
}

func TestWatchFilesDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frames.json")
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 10)
	go watchFiles(ctx, zerolog.Nop(), func() { changes <- struct{}{} }, path)
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("[[0,[]]]"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case <-changes:
		t.Error("burst of writes reported more than once")
	case <-time.After(2 * reloadDebounce):
	}
}
