package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/volkzayaz/RR-sub003/internal/actor"
	"github.com/volkzayaz/RR-sub003/internal/player"
	"github.com/volkzayaz/RR-sub003/internal/playlist"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  add <id>...            append catalog tracks
  insert <pos> <id>...   insert after position (0 = head)
  del <pos>              delete a position
  move <pos> <after>     move a position after another (0 = head)
  clear                  empty the playlist
  play <pos>             start a position
  next | prev            skip forward or back
  pause | resume         toggle playback
  seek <seconds>         set progress of the current track
  block | unblock        lock the session for other members
  shuffle on|off
  repeat on|off
  list                   show the playlist
  retry                  fetch missing track details again
  status                 show connection and player state
  quit`

// console turns command lines into player actions.
type console struct {
	player  *player.Player
	fetcher player.TrackFetcher
	conn    func() actor.ConnState
	out     io.Writer
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "add":
		tracks, err := c.resolve(ctx, args)
		if err != nil {
			return err
		}
		_, err = c.player.Append(tracks)
		return err
	case "insert":
		if len(args) < 2 {
			return errors.New("usage: insert <pos> <id>...")
		}
		after, err := c.anchor(args[0])
		if err != nil {
			return err
		}
		tracks, err := c.resolve(ctx, args[1:])
		if err != nil {
			return err
		}
		_, err = c.player.Insert(tracks, after)
		return err
	case "del":
		pos, err := c.position(args)
		if err != nil {
			return err
		}
		return c.player.Delete(pos)
	case "move":
		if len(args) != 2 {
			return errors.New("usage: move <pos> <after>")
		}
		pos, err := c.position(args[:1])
		if err != nil {
			return err
		}
		after, err := c.anchor(args[1])
		if err != nil {
			return err
		}
		_, err = c.player.Move(pos, after)
		return err
	case "clear":
		return c.player.Clear()
	case "play":
		pos, err := c.position(args)
		if err != nil {
			return err
		}
		return c.player.Play(pos.OrderHash)
	case "next":
		return c.player.Advance()
	case "prev":
		return c.player.Rewind()
	case "pause", "resume":
		cur := c.player.State().CurrentItem
		if cur == nil {
			return errors.New("nothing is playing")
		}
		return c.player.SetTrackState(cur.State.Progress, cmd == "resume")
	case "seek":
		cur := c.player.State().CurrentItem
		if cur == nil {
			return errors.New("nothing is playing")
		}
		if len(args) != 1 {
			return errors.New("usage: seek <seconds>")
		}
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil || sec < 0 {
			return fmt.Errorf("bad seconds %q", args[0])
		}
		return c.player.SetTrackState(sec, cur.State.IsPlaying)
	case "block", "unblock":
		return c.player.SetBlocked(cmd == "block")
	case "shuffle", "repeat":
		on, err := onOff(args)
		if err != nil {
			return err
		}
		tracks := c.player.State().Tracks
		if cmd == "shuffle" {
			return c.player.SetPlaybackMode(on, tracks.ShouldRepeat)
		}
		return c.player.SetPlaybackMode(tracks.ShouldShuffle, on)
	case "list", "ls":
		return c.list()
	case "status":
		c.status()
		return nil
	case "retry":
		c.player.RetryHydration()
		return nil
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

// resolve fetches payloads so added tracks go out complete.
func (c *console) resolve(ctx context.Context, ids []string) ([]playlist.Track, error) {
	if len(ids) == 0 {
		return nil, errors.New("no track ids given")
	}
	found, err := c.fetcher.FetchTracks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]playlist.Track, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]playlist.Track, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown track %q", id)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *console) ordered() ([]playlist.OrderedTrack, error) {
	s := c.player.State()
	return s.Tracks.OrderedTracks()
}

func (c *console) position(args []string) (playlist.OrderedTrack, error) {
	if len(args) != 1 {
		return playlist.OrderedTrack{}, errors.New("expected one position")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return playlist.OrderedTrack{}, fmt.Errorf("bad position %q", args[0])
	}
	ordered, err := c.ordered()
	if err != nil {
		return playlist.OrderedTrack{}, err
	}
	if n < 1 || n > len(ordered) {
		return playlist.OrderedTrack{}, fmt.Errorf("position %d out of range 1..%d", n, len(ordered))
	}
	return ordered[n-1], nil
}

// anchor resolves an "after" position where 0 means the head.
func (c *console) anchor(arg string) (*playlist.OrderedTrack, error) {
	if arg == "0" {
		return nil, nil
	}
	pos, err := c.position([]string{arg})
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (c *console) list() error {
	s := c.player.State()
	ordered, err := s.Tracks.OrderedTracks()
	if err != nil {
		return err
	}
	if len(ordered) == 0 {
		fmt.Fprintln(c.out, "playlist is empty")
		return nil
	}
	cur := s.CurrentHash()
	for i, t := range ordered {
		marker := " "
		if cur != nil && *cur == t.OrderHash {
			marker = ">"
		}
		title := t.Track.Title
		switch {
		case t.Pending && s.IsUnresolved(t.Track.ID):
			title = "(unknown)"
		case t.Pending:
			title = "(loading)"
		}
		fmt.Fprintf(c.out, "%s %2d. %s - %s [%s]\n", marker, i+1, title, t.Track.Artist, t.Track.ID)
	}
	return nil
}

func (c *console) status() {
	s := c.player.State()
	fmt.Fprintf(c.out, "connection: %s\n", c.conn())
	fmt.Fprintf(c.out, "signature:  %s\n", c.player.Signature())
	fmt.Fprintf(c.out, "tracks:     %d (rev %d)\n", s.Tracks.Count(), s.Rev)
	fmt.Fprintf(c.out, "blocked:    %t  shuffle: %t  repeat: %t\n", s.IsBlocked, s.Tracks.ShouldShuffle, s.Tracks.ShouldRepeat)
	if cur := s.CurrentItem; cur != nil {
		state := "paused"
		if cur.State.IsPlaying {
			state = "playing"
		}
		fmt.Fprintf(c.out, "current:    %s %s at %.1fs\n", cur.OrderHash, state, cur.State.Progress)
	}
	if s.FetchError != "" {
		fmt.Fprintf(c.out, "fetch:      %s\n", s.FetchError)
	}
	if len(s.Unresolved) > 0 {
		fmt.Fprintf(c.out, "unknown:    %s\n", strings.Join(s.Unresolved, ", "))
	}
	if s.NeedsResync {
		fmt.Fprintln(c.out, "resync pending")
	}
}

func onOff(args []string) (bool, error) {
	if len(args) == 1 {
		switch args[0] {
		case "on":
			return true, nil
		case "off":
			return false, nil
		}
	}
	return false, errors.New("expected on or off")
}
