// Command ask sends one prompt to a streamgate gateway over WebSocket and
// prints the streamed completion as it arrives.
//
//	ask -l de "The quick brown fox"
//	echo "Bonjour" | ask --provider anthropic -l en
//
// Lost connections are retried with backoff until the request has been
// delivered; after that a dropped stream ends with the text received so far.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rhuss/streamgate/pkg/api"
	"github.com/rhuss/streamgate/pkg/reconnect"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdin, os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ask:", err)
		os.Exit(1)
	}
}

func newCommand(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Stream a completion from a streamgate gateway",
		ArgsUsage: "[selection...]",
		Description: "The selection is taken from the arguments, or from standard input " +
			"when no arguments are given.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Value:   "ws://localhost:8080/v1/stream",
				Usage:   "gateway WebSocket endpoint",
				Sources: cli.EnvVars("STREAMGATE_URL"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "gateway API key, sent as X-API-Key",
				Sources: cli.EnvVars("STREAMGATE_API_KEY"),
			},
			&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "upstream provider ID"},
			&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "target language"},
			&cli.StringFlag{Name: "ui-lang", Usage: "language for configuration errors"},
			&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Usage: "surrounding text"},
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "replace the default system prompt"},
			&cli.BoolFlag{Name: "batch", Aliases: []string{"b"}, Usage: "schedule through the gateway's task queue"},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute, Usage: "overall deadline"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			selection := strings.Join(cmd.Args().Slice(), " ")
			if selection == "" {
				data, err := io.ReadAll(stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				selection = strings.TrimSpace(string(data))
			}
			if selection == "" {
				_ = cli.ShowAppHelp(cmd)
				return cli.Exit("a selection is required", 2)
			}

			req := api.Request{
				Action: api.ActionGenerate,
				Payload: api.Payload{
					Selection:      selection,
					Context:        cmd.String("context"),
					TargetLanguage: cmd.String("lang"),
					UILanguage:     cmd.String("ui-lang"),
					Provider:       cmd.String("provider"),
					Instruction:    cmd.String("instruction"),
				},
			}
			if cmd.Bool("batch") {
				req.Action = api.ActionBatchGenerate
			}

			header := http.Header{}
			if key := cmd.String("api-key"); key != "" {
				header.Set("X-API-Key", key)
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			return ask(ctx, reconnect.WebSocketDialer(cmd.String("url"), header), reconnect.DefaultConfig(), req, stdout)
		},
	}
}

// ask runs req and copies deltas to out. It fails with the gateway's
// error message when the stream ends with an error event.
func ask(ctx context.Context, d reconnect.Dialer, cfg reconnect.Config, req api.Request, out io.Writer) error {
	var failure string
	reconnect.New(d, cfg).Run(ctx, req, reconnect.Callbacks{
		OnDelta: func(text string) { _, _ = io.WriteString(out, text) },
		OnDone:  func(string) { _, _ = io.WriteString(out, "\n") },
		OnError: func(msg string) { failure = msg },
	})
	if failure != "" {
		return cli.Exit(failure, 1)
	}
	return nil
}
