package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/volkzayaz/RR-sub003/internal/actor"
	"github.com/volkzayaz/RR-sub003/internal/catalog"
	"github.com/volkzayaz/RR-sub003/internal/channel"
	"github.com/volkzayaz/RR-sub003/internal/player"
)

func main() {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "rr> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("add"), readline.PcItem("insert"), readline.PcItem("del"),
			readline.PcItem("move"), readline.PcItem("clear"), readline.PcItem("play"),
			readline.PcItem("next"), readline.PcItem("prev"), readline.PcItem("pause"),
			readline.PcItem("resume"), readline.PcItem("seek"), readline.PcItem("block"),
			readline.PcItem("unblock"), readline.PcItem("list"), readline.PcItem("status"),
			readline.PcItem("retry"),
			readline.PcItem("shuffle", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("repeat", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("help"), readline.PcItem("quit"),
		),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: rl.Stderr()}).
		Level(cfg.LogLevel).
		With().Timestamp().Str("session", cfg.SessionID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	fetcher := catalog.NewClient(cfg.CatalogURL, logger)
	store := player.NewStore(player.NewState())
	rec := player.NewReconciler(ctx, store, fetcher, logger)
	p := player.New(store, rec, cfg.SignatureHash)

	dialer := channel.NewDialer(channel.Config{
		URL:     cfg.RelayURL,
		Session: cfg.SessionID,
		Token:   cfg.SessionToken,
		Origin:  cfg.Origin,
	}, logger)
	a := actor.New(store, rec, dialer, cfg.SignatureHash, logger)

	g.Go(func() error { return a.Run(ctx) })
	report := watch(store, cfg.SignatureHash, rl.Stdout())
	g.Go(func() error {
		report(ctx)
		return nil
	})

	con := &console{player: p, fetcher: fetcher, conn: a.State, out: rl.Stdout()}
	logger.Info().Str("signature", cfg.SignatureHash).Msg("player started, type help")

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err != nil {
			break
		}
		if err := con.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
	}

	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("player stopped")
	}
	rec.Wait()
}

// watch subscribes to store and returns a loop that reports edits made by
// other session members until ctx ends.
func watch(store *player.Store, signature string, out io.Writer) func(context.Context) {
	changes, cancel := store.Subscribe(64)
	return func(ctx context.Context) {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				if ch.Signature == signature || ch.Signature == player.HydrationSignature {
					continue
				}
				fmt.Fprintf(out, "\n[remote] %s\n", ch.Action)
			}
		}
	}
}
