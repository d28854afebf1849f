package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cropcall/native/internal/api"
	"cropcall/native/internal/crop"
	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
	"cropcall/native/internal/room"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Fetch a host access token for a room",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User name", Required: true},
			&cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "Room name", Required: true},
		},
		Action: func(c *cli.Context) error {
			env, err := newRuntimeEnv(c)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			if err := env.cfg.RequireAPIBaseURL(); err != nil {
				return err
			}

			var fetcher domain.TokenFetcher = api.NewClient(env.cfg.APIBaseURL, api.WithLogger(env.logger.Named("api")))
			token, err := fetcher.FetchToken(c.Context, c.String("user"), c.String("room"))
			if err != nil {
				return fmt.Errorf("fetch token: %w", err)
			}

			env.logger.Info("token obtained", zap.String("room", c.String("room")), zap.String("user", c.String("user")))
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func cropCommand() *cli.Command {
	return &cli.Command{
		Name:  "crop",
		Usage: "Crop a synthetic camera track through the crop plugin",
		Description: `Attaches the crop plugin to a synthetic local camera, reads processed
frames, optionally writes a PNG snapshot, then detaches the plugin.`,
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "x", Usage: "Crop origin x"},
			&cli.Float64Flag{Name: "y", Usage: "Crop origin y"},
			&cli.Float64Flag{Name: "width", Usage: "Crop width", Required: true},
			&cli.Float64Flag{Name: "height", Usage: "Crop height", Required: true},
			&cli.IntFlag{Name: "frames", Value: 30, Usage: "Number of processed frames to read"},
			&cli.StringFlag{Name: "snapshot", Usage: "Write a PNG of one cropped frame to this path"},
		},
		Action: func(c *cli.Context) error {
			env, err := newRuntimeEnv(c)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			coords := domain.CropCoordinates{
				X:      c.Float64("x"),
				Y:      c.Float64("y"),
				Width:  c.Float64("width"),
				Height: c.Float64("height"),
			}
			return runCrop(c, env, coords)
		},
	}
}

func runCrop(c *cli.Context, env *runtimeEnv, coords domain.CropCoordinates) error {
	ctx := c.Context
	logger := env.logger

	rt := media.NewRuntime()
	camera := media.NewPatternTrack(media.PatternConfig{
		Width:  env.cfg.SourceWidth,
		Height: env.cfg.SourceHeight,
		FPS:    env.cfg.SourceFPS,
	})
	defer camera.Stop()

	store, err := room.New(media.NewStream(camera), room.WithLogger(logger.Named("room")), room.WithRuntime(rt))
	if err != nil {
		return err
	}
	defer store.Close()

	unsubscribe := store.Subscribe(func(st room.State) {
		logger.Debug("room state", zap.String("track", st.LocalVideoTrackID), zap.Strings("plugins", st.Plugins))
	})
	defer unsubscribe()

	toggler := crop.NewToggler(store, store, rt, logger.Named("crop"))

	plugin, err := toggler.Toggle(ctx, coords)
	if err != nil {
		return err
	}
	if !store.IsLocalVideoPluginPresent(plugin.Name()) {
		return errors.New("crop plugin was not attached")
	}

	processed := store.ProcessedStream()
	track, err := media.PrimaryVideoTrack(processed)
	if err != nil {
		return err
	}

	for i := 0; i < c.Int("frames"); i++ {
		f, err := track.ReadFrame(ctx)
		if err != nil {
			select {
			case pipeErr := <-plugin.PipeErrors():
				return fmt.Errorf("crop pipeline: %w", pipeErr)
			default:
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		logger.Info("frame",
			zap.Int("n", i),
			zap.Duration("ts", f.Timestamp),
			zap.Stringer("visible", f.VisibleRect),
			zap.Int("coded_width", f.CodedWidth()),
			zap.Int("coded_height", f.CodedHeight()))
		f.Close()
	}

	if path := c.String("snapshot"); path != "" {
		data, err := plugin.SnapshotPNG(ctx, processed)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		logger.Info("snapshot written", zap.String("path", path), zap.Int("bytes", len(data)))
	}

	if _, err := toggler.Toggle(ctx, coords); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	logger.Info("crop detached", zap.Strings("plugins", store.Plugins()))
	return nil
}
