// Package player drives the external media player. It resolves a channel to
// a rendition URL and hands it to the player process; decoding and rendering
// stay entirely inside that process.
package player

import (
	"bytes"
	"context"
	"fmt"
	"k4llisto/app/client/stream"
	"k4llisto/pkg/config"
	"k4llisto/pkg/util"
	"log/slog"
	"os/exec"

	"github.com/getsentry/sentry-go"
	"github.com/samber/do"
)

type Service struct {
	cfg      *config.Config
	resolver *stream.Resolver
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:      do.MustInvoke[*config.Config](di),
		resolver: do.MustInvoke[*stream.Resolver](di),
	}, nil
}

// Play resolves the channel's stream URL and blocks until the player
// process exits or the context is canceled.
func (s *Service) Play(ctx context.Context, channel, quality string) error {
	ctx = context.WithValue(ctx, util.ChannelContextKey, channel)

	span := sentry.StartSpan(ctx, "player.play")
	defer span.Finish()

	streamURL, err := s.resolver.FetchStreamURL(ctx, channel, quality)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("fetch stream url: %w", err)
	}

	slog.Info("Stream ready, starting player",
		slog.String("command", s.cfg.Player.Command),
	)

	args := append(append([]string{}, s.cfg.Player.Args...), streamURL)
	cmd := exec.CommandContext(ctx, s.cfg.Player.Command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("player process failed: %v, stderr: %s", err, stderr.String())
	}

	return nil
}
