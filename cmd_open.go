package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/config"
	"github.com/gluk-w/claworc/webconsole/internal/connection"
	"github.com/gluk-w/claworc/webconsole/internal/protocol"
	"github.com/gluk-w/claworc/webconsole/internal/resize"
	"github.com/gluk-w/claworc/webconsole/internal/session"
)

// escapeByte is Ctrl-]. It is followed by q (quit) or r (retry).
const escapeByte = 0x1d

var openCmd = &cobra.Command{
	Use:   "open <connection-id>",
	Short: "Attach this terminal to an SSH or Telnet session",
	Long: `Open a text session on a connection and attach the local terminal to it.

Press Ctrl-] then q to quit, or Ctrl-] then r to retry a failed connection.
Ctrl-] twice sends a literal Ctrl-].`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func init() {
	openCmd.Flags().String("session", "", "Attach to an existing backend session instead of creating one")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("open requires a TTY")
	}

	cleanup, err := setup(io.Discard)
	if err != nil {
		return err
	}
	defer cleanup()

	client := backend.FromConfig()
	source, _, err := connectionSource(client)
	if err != nil {
		return err
	}
	sessionID, _ := cmd.Flags().GetString("session")
	created := sessionID == ""

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := source.GetConnection(ctx, args[0])
	if err != nil {
		return err
	}
	if err := d.Normalize(); err != nil {
		return err
	}
	if d.Protocol.Graphical() {
		return fmt.Errorf("%s is a %s connection; graphical sessions are available through serve", d.ID, d.Protocol)
	}

	opts := session.OptionsFromConfig(config.Cfg, source, client)
	opts.Cells = resize.CellGrid
	tabs := session.NewRegistry(opts)

	key, err := tabs.Open(ctx, args[0], sessionID)
	if err != nil {
		return err
	}
	s := tabs.Get(key)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		closeOpened(tabs, key, created)
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stderr, "Opening %s (session %s). Ctrl-] q to quit.\r\n", s.Title(), s.SessionID)

	history, updates, detach := s.Output().Attach()
	defer detach()
	os.Stdout.Write(history)

	fitTerminal := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			tabs.Resize(key, protocol.Size{Width: cols, Height: rows})
		}
	}
	fitTerminal()

	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	defer signal.Stop(winchCh)

	quit := make(chan struct{})
	go readKeys(tabs, key, quit)

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			printUpdate(s, u)
		case <-winchCh:
			fitTerminal()
		case <-quit:
			term.Restore(fd, oldState)
			fmt.Fprint(os.Stderr, "\r\nClosing session...\r\n")
			closeOpened(tabs, key, created)
			return nil
		}
	}
}

// closeOpened closes the tab. A backend session that open created is torn
// down too; an attached one is left running.
func closeOpened(tabs *session.Registry, key string, created bool) {
	if !created {
		tabs.CloseTab(key)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tabs.CloseAll(ctx)
}

// keyAction is what an escape sequence asked for.
type keyAction int

const (
	keyNone keyAction = iota
	keyQuit
	keyRetry
)

// keyFilter strips Ctrl-] escape sequences from stdin chunks. An escape at
// the end of one chunk carries over to the next.
type keyFilter struct {
	escaped bool
}

// feed returns the bytes to send and any action. Input after a quit is
// discarded; input after a retry is returned with the retry.
func (f *keyFilter) feed(in []byte) ([]byte, keyAction) {
	out := make([]byte, 0, len(in))
	action := keyNone
	for _, b := range in {
		if f.escaped {
			f.escaped = false
			switch b {
			case 'q', '.':
				return out, keyQuit
			case 'r':
				action = keyRetry
				continue
			case escapeByte:
				out = append(out, escapeByte)
				continue
			}
			out = append(out, escapeByte)
		}
		if b == escapeByte {
			f.escaped = true
			continue
		}
		out = append(out, b)
	}
	return out, action
}

// readKeys forwards stdin to the tab until the quit sequence.
func readKeys(tabs *session.Registry, key string, quit chan<- struct{}) {
	defer close(quit)
	var f keyFilter
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		out, action := f.feed(buf[:n])
		if len(out) > 0 {
			if err := tabs.SendText(key, out); errors.Is(err, session.ErrNotFound) {
				return
			}
		}
		switch action {
		case keyQuit:
			return
		case keyRetry:
			tabs.Retry(key)
		}
	}
}

func printUpdate(s *session.Session, u session.Update) {
	switch u.Kind {
	case session.UpdateOutput:
		os.Stdout.Write(u.Text)
	case session.UpdateState:
		fmt.Fprintf(os.Stderr, "\r\n[%s] %s\r\n", s.Title(), u.To)
		if u.To == connection.StateFailed.String() {
			fmt.Fprint(os.Stderr, "Press Ctrl-] r to retry or Ctrl-] q to quit.\r\n")
		}
	case session.UpdateNotice:
		if u.Note != nil {
			fmt.Fprintf(os.Stderr, "\r\n[%s] %s: %s\r\n", s.Title(), u.Note.Level, u.Note.Text)
		}
	}
}
