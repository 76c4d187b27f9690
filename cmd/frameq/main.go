package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli"

	"frameq/internal/app"
	logx "frameq/pkg/logx"
)

var (
	cfgPath   string
	sessionID string
	asJSON    bool
	logLevel  string

	configFlag = cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the yaml or json config",
		Value:       "./config.yaml",
		Destination: &cfgPath,
	}
	levelFlag = cli.StringFlag{
		Name:        "log-level",
		Usage:       "log level for offline commands",
		Value:       "warn",
		Destination: &logLevel,
	}
)

func main() {
	a := cli.App{
		Name:      "frameq",
		HelpName:  "frameq",
		Usage:     "frame-driven virtual-time scheduler",
		UsageText: "frameq <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "run the frame loop until SIGINT or SIGTERM",
				Action: run,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "replay",
				Usage:  "replay a recorded session against the demo workload",
				Action: replay,
				Flags: []cli.Flag{
					configFlag,
					levelFlag,
					cli.StringFlag{
						Name:        "session, s",
						Usage:       "session id to replay",
						Destination: &sessionID,
					},
				},
			},
			{
				Name:   "sessions",
				Usage:  "list recorded sessions",
				Action: sessions,
				Flags: []cli.Flag{
					configFlag,
					levelFlag,
					cli.BoolFlag{
						Name:        "json",
						Usage:       "print sessions as json",
						Destination: &asJSON,
					},
				},
			},
		},
	}
	if err := a.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "frameq:", err)
		os.Exit(1)
	}
}

func run(*cli.Context) error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("fatal: %v", err), 1)
	}
	if err := a.Start(ctx); err != nil {
		return cli.NewExitError(fmt.Sprintf("fatal start: %v", err), 1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigc:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			return cli.NewExitError(fmt.Sprintf("fatal: %v", err), 1)
		}
	}
	return nil
}

func replay(c *cli.Context) error {
	if sessionID == "" {
		return cli.NewExitError("replay: --session is required", 2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sum, err := app.Replay(ctx, cfgPath, sessionID, logx.NewConsole(logLevel))
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "session  %s\n", sum.Session.ID)
	fmt.Fprintf(w, "frames   %d\n", sum.Frames)
	fmt.Fprintf(w, "fired    %d\n", sum.Fired)
	fmt.Fprintf(w, "final    %dms\n", int64(sum.Final))
	fmt.Fprintf(w, "casts    %d\n", sum.Casts)
	fmt.Fprintf(w, "steps    %d\n", sum.Steps)
	return nil
}

func sessions(c *cli.Context) error {
	list, err := app.Sessions(context.Background(), cfgPath, logx.NewConsole(logLevel))
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(c.App.Writer, "frameq: no sessions recorded")
		return nil
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTARTED\tFRAMES\tTICK\tFINISHED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\n",
			s.ID, s.Label, s.StartedAt.Format(time.RFC3339), s.Frames, s.TickInterval, s.Finished())
	}
	return tw.Flush()
}
