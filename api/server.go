package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Status describes the current animation.
type Status struct {
	State string `json:"state"`
	Loops int64  `json:"loops"`
}

// A Player is the running animation the API reports on and controls.
type Player interface {
	Status() Status
	Stop()
}

// A FrameEncoder renders the current surface as a PNG.
type FrameEncoder interface {
	EncodePNG(w io.Writer) error
}

type Api struct {
	player Player
	frame  FrameEncoder
	log    zerolog.Logger
}

func NewApi(player Player, frame FrameEncoder, logger zerolog.Logger) *Api {
	a := new(Api)
	a.player = player
	a.frame = frame
	a.log = logger.With().Str("component", "api").Logger()
	return a
}

// Handler routes GET /frame.png, GET /status and POST /stop.
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/frame.png", a.handleFrame)
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/stop", a.handleStop)
	return mux
}

func (a *Api) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := a.frame.EncodePNG(&buf); err != nil {
		a.log.Error().Err(err).Msg("encode frame")
		http.Error(w, "encode frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (a *Api) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.player.Status())
}

func (a *Api) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.log.Info().Str("remote", r.RemoteAddr).Msg("stop requested")
	a.player.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// Serve listens on addr until ctx is done.
func (a *Api) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.log.Info().Str("addr", addr).Msg("Listening...")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
