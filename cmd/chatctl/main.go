// Command chatctl talks to a running relay from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const usage = `usage: chatctl <command> [flags]

commands:
  listen   -user NAME                      follow the event stream of a new session
  chat     -user NAME                      interactive session, "@bob text" sends privately
  send     -from NAME [-to NAME] TEXT      post one message
  history  -room KEY | -user1 A -user2 B   print a room log
  search   -room KEY QUERY                 full-text search, supports --from and --limit
  presence                                 print who is online
  claim    NAME                            check whether a name is free`

func main() {
	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, out io.Writer) (int, error) {
	if len(args) == 0 {
		return exitConfig, errors.New(usage)
	}
	cfg, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	client := newRelayClient(cfg.ServerURL, cfg.Timeout)
	p := printer{out: out, colours: cfg.Colours}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, rest := args[0], args[1:]
	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	switch command {
	case "listen":
		user := flags.String("user", "", "identity of the session")
		if err := flags.Parse(rest); err != nil {
			return exitConfig, err
		}
		return exitCode(client.Listen(ctx, *user, p.event))

	case "chat":
		user := flags.String("user", "", "identity of the session")
		if err := flags.Parse(rest); err != nil {
			return exitConfig, err
		}
		return exitCode(chat(ctx, client, *user, os.Stdin, p))

	case "send":
		from := flags.String("from", "", "sender identity")
		to := flags.String("to", "", "private target, public when empty")
		if err := flags.Parse(rest); err != nil {
			return exitConfig, err
		}
		message, err := client.Send(ctx, *from, *to, strings.Join(flags.Args(), " "))
		if err != nil {
			return exitRuntime, err
		}
		p.message(message)

	case "history":
		room := flags.String("room", "", "room key, public or a:b")
		user1 := flags.String("user1", "", "first identity of a private room")
		user2 := flags.String("user2", "", "second identity of a private room")
		if err := flags.Parse(rest); err != nil {
			return exitConfig, err
		}
		messages, err := client.History(ctx, *room, *user1, *user2)
		if err != nil {
			return exitRuntime, err
		}
		p.messages(messages)

	case "search":
		room := flags.String("room", "public", "room key")
		if err := flags.Parse(rest); err != nil {
			return exitConfig, err
		}
		hits, err := client.Search(ctx, *room, strings.Join(flags.Args(), " "))
		if err != nil {
			return exitRuntime, err
		}
		p.hits(hits)

	case "presence":
		list, err := client.Presence(ctx)
		if err != nil {
			return exitRuntime, err
		}
		p.presence(list)

	case "claim":
		if len(rest) != 1 {
			return exitConfig, errors.New("claim expects exactly one name")
		}
		available, err := client.Claim(ctx, rest[0])
		if err != nil {
			return exitRuntime, err
		}
		if !available {
			_, _ = fmt.Fprintf(out, "%s is already taken\n", rest[0])
			return exitRuntime, nil
		}
		_, _ = fmt.Fprintf(out, "%s is available\n", rest[0])

	default:
		return exitConfig, fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	return exitOK, nil
}

func exitCode(err error) (int, error) {
	if err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

// chat relays stdin lines over a WebSocket session and prints every event received.
func chat(ctx context.Context, client *relayClient, user string, in io.Reader, p printer) error {
	conn, err := client.Dial(ctx, user)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	readErr := make(chan error, 1)
	go func() {
		for {
			var evt envelope
			if err := conn.ReadJSON(&evt); err != nil {
				readErr <- err
				return
			}
			p.event(evt)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := conn.WriteJSON(outgoing(line)); err != nil {
				return err
			}
		}
	}
}

// outgoing turns "@bob hello" into a private message to bob.
func outgoing(line string) map[string]any {
	if target, body, ok := strings.Cut(line, " "); ok && strings.HasPrefix(target, "@") && len(target) > 1 {
		return map[string]any{"body": body, "target": target[1:], "isPrivate": true}
	}
	return map[string]any{"body": line}
}
