package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/matt-g-everett/spritetx/api"
	"github.com/matt-g-everett/spritetx/sprite"
	"github.com/matt-g-everett/spritetx/stream"
	"github.com/matt-g-everett/spritetx/util"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

type app struct {
	Config   stream.Config
	Client   mqtt.Client
	Streamer *stream.Streamer

	log     zerolog.Logger
	surface *sprite.ImageSurface
	host    *sprite.TickerHost
	loader  sprite.Loader

	mu        sync.Mutex
	scheduler *sprite.FrameScheduler
}

func newApp(config stream.Config, logger zerolog.Logger) (*app, error) {
	a := new(app)
	a.Config = config
	a.log = logger

	surface, err := sprite.NewImageSurface(config.Background)
	if err != nil {
		return nil, err
	}
	a.surface = surface
	a.host = sprite.NewTickerHost(config.FrameRate)
	a.loader = sprite.NewFileLoader()

	return a, nil
}

// play starts the configured animation, replacing any current one. The
// current animation keeps running if the new frames can't be read.
func (a *app) play() error {
	frames, err := sprite.LoadFrames(a.Config.Frames)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	opts := sprite.Options{
		Logger: &a.log,
		OnLoadError: func(err error) {
			a.log.Error().Err(err).Msg("animation will not start")
		},
	}
	if a.Streamer != nil {
		streamer := a.Streamer
		opts.OnFrame = func(int) { streamer.Notify() }
	}

	s, err := sprite.NewFrameScheduler(a.surface, a.loader, a.host, a.Config.Spritesheet, frames, opts)
	if err != nil {
		return err
	}
	a.scheduler = s
	return nil
}

func (a *app) reload() {
	a.log.Info().Msg("reloading animation")
	if err := a.play(); err != nil {
		a.log.Error().Err(err).Msg("reload failed")
	}
}

// Status reports the current animation.
func (a *app) Status() api.Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scheduler == nil {
		return api.Status{State: sprite.StateUnstarted.String()}
	}
	return api.Status{State: a.scheduler.State().String(), Loops: a.scheduler.Loops()}
}

// Stop stops the current animation.
func (a *app) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
}

func (a *app) handleCommand(cmd stream.Command) {
	switch cmd {
	case stream.CommandStop:
		a.Stop()
	case stream.CommandReload:
		a.reload()
	}
}

func (a *app) handleOnConnect(client mqtt.Client) {
	a.log.Info().Str("broker", a.Config.Mqtt.URL).Msg("Connected")
	if err := a.Streamer.Subscribe(a.handleCommand); err != nil {
		a.log.Error().Err(err).Msg("control topic unavailable")
	}
}

func (a *app) connect() error {
	mqttLog := log.New(a.log.With().Str("component", "mqtt").Logger(), "", 0)
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog

	options := mqtt.NewClientOptions().
		AddBroker(a.Config.Mqtt.URL).
		SetClientID("spritetx-" + uuid.NewString()[:8]).
		SetUsername(a.Config.Mqtt.Username).
		SetPassword(a.Config.Mqtt.Password).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetOnConnectHandler(a.handleOnConnect)
	a.Client = mqtt.NewClient(options)
	a.Streamer = stream.NewStreamer(a.Config, a.Client, a.surface, a.log)

	if token := a.Client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect %s: %w", a.Config.Mqtt.URL, token.Error())
	}
	return nil
}

func (a *app) run(ctx context.Context) error {
	if a.Config.Mqtt.URL != "" {
		if err := a.connect(); err != nil {
			return err
		}
		defer a.Client.Disconnect(250)
		go a.Streamer.Run(ctx)
	}

	go a.host.Run(ctx)

	if err := a.play(); err != nil {
		return err
	}
	defer a.Stop()

	if a.Config.Watch {
		go func() {
			if err := watchFiles(ctx, a.log, a.reload, a.Config.Frames, a.Config.Spritesheet); err != nil {
				a.log.Error().Err(err).Msg("file watch stopped")
			}
		}()
	}

	if a.Config.HTTP.Listen != "" {
		server := api.NewApi(a, a.surface, a.log)
		go func() {
			if err := server.Serve(ctx, a.Config.HTTP.Listen); err != nil {
				a.log.Error().Err(err).Msg("api stopped")
			}
		}()
	}

	<-ctx.Done()
	a.log.Info().Msg("shutting down")
	return nil
}

func readConfig(configPath string, required bool) (stream.Config, error) {
	var config stream.Config

	f, err := os.Open(configPath)
	if errors.Is(err, os.ErrNotExist) && !required {
		return config, nil
	}
	if err != nil {
		return config, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("%s: %w", configPath, err)
	}
	return config, nil
}

func rootCmd() *cobra.Command {
	var configPath, frames, spritesheet string

	cmd := &cobra.Command{
		Use:          "spritetx",
		Short:        "Play a spritesheet animation and stream it over MQTT",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := readConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if frames != "" {
				config.Frames = frames
			}
			if spritesheet != "" {
				config.Spritesheet = spritesheet
			}
			config.Defaults()
			if err := config.Validate(); err != nil {
				return err
			}

			logger := util.NewLogger(config.Log, os.Stderr)
			logger.Debug().
				Str("frames", config.Frames).
				Str("spritesheet", config.Spritesheet).
				Float64("frameRate", config.FrameRate).
				Msg("config loaded")

			a, err := newApp(config, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "YAML config file.")
	cmd.Flags().StringVar(&frames, "frames", "", "Frames file, overrides the config.")
	cmd.Flags().StringVar(&spritesheet, "spritesheet", "", "Spritesheet image, overrides the config.")
	cmd.AddCommand(convertCmd())

	return cmd
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <data.json> [out.json]",
		Short: "Rewrite packed sheet data as a frame list",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := sprite.LoadFrames(args[0])
			if err != nil {
				return err
			}

			data, err := json.Marshal(frames)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return os.WriteFile(args[1], data, 0644)
		},
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
