// Command heysb is the CLI front end for package sandbox, analogous to
// the teacher's cmd/hey: a urfave/cli/v3 command tree loading a prepared
// program once and driving it through Runner.Run/Start. Since this repo
// ships no parser (spec.md §1), "a program" here means a gob-encoded
// asm.Unit file rather than a .py source file.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/wudi/heysb/asm"
	"github.com/wudi/heysb/config"
	"github.com/wudi/heysb/iowriter"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/sandbox"
	"github.com/wudi/heysb/tracker"
	"github.com/wudi/heysb/version"
)

func main() {
	app := &cli.Command{
		Name:  "heysb",
		Usage: "a sandboxed, reentrant Python interpreter runtime",
		Commands: []*cli.Command{
			runCommand,
			replCommand,
			snapshotCommand,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "version", Usage: "show version"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.Version())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "heysb: %v\n", err)
		os.Exit(1)
	}
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a compiled unit once (Runner.Run, no external calls allowed)",
	ArgsUsage: "<unit-file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "tracker profile YAML file"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			return fmt.Errorf("usage: heysb run <unit-file>")
		}
		runner, err := loadRunner(path)
		if err != nil {
			return err
		}
		tr := trackerFromFlag(cmd)

		result, exc := runner.Run(nil, tr, iowriter.NewStdout(os.Stdout))
		if exc != nil {
			return fmt.Errorf("%s", exc.Error())
		}
		fmt.Printf("=> %v\n", result)
		return nil
	},
}

var replCommand = &cli.Command{
	Name:      "repl",
	Usage:     "interactively drive Runner.Start/Snapshot.Run one external call at a time",
	ArgsUsage: "<unit-file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "tracker profile YAML file"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			return fmt.Errorf("usage: heysb repl <unit-file>")
		}
		runner, err := loadRunner(path)
		if err != nil {
			return err
		}
		tr := trackerFromFlag(cmd)
		print := iowriter.NewStdout(os.Stdout)

		interactive := isatty.IsTerminal(os.Stdin.Fd())
		var rl *readline.Instance
		if interactive {
			rl, err = readline.New("heysb> ")
			if err != nil {
				return err
			}
			defer rl.Close()
		}

		progress, exc := runner.Start(nil, tr, print)
		if exc != nil {
			return fmt.Errorf("%s", exc.Error())
		}
		return driveProgress(progress, rl, interactive)
	},
}

// driveProgress walks RunProgress to completion, prompting the user for
// an ExternalResult at every suspension point. A non-interactive pipe
// (mattn/go-isatty false) answers every suspension with None rather than
// blocking on a readline prompt that will never come.
func driveProgress(progress sandbox.RunProgress, rl *readline.Instance, interactive bool) error {
	print := iowriter.NewStdout(os.Stdout)
	for {
		switch progress.Kind {
		case sandbox.ProgressComplete:
			fmt.Printf("=> %v\n", progress.Result)
			return nil

		case sandbox.ProgressFunctionCall, sandbox.ProgressOsCall:
			kind := "external call"
			if progress.Kind == sandbox.ProgressOsCall {
				kind = "os call"
			}
			fmt.Printf("[suspended: %s %s(%v) call_id=%d]\n", kind, progress.Name, progress.Args, progress.CallID)
			answer := promptResult(rl, interactive)
			next, exc := progress.State.Run(answer, print)
			if exc != nil {
				return fmt.Errorf("%s", exc.Error())
			}
			progress = next

		case sandbox.ProgressResolveFutures:
			ids := progress.Futures.PendingCallIDs()
			fmt.Printf("[suspended: awaiting %d future(s): %v]\n", len(ids), ids)
			results := make(map[pyvalue.CallId]sandbox.ExternalResult, len(ids))
			for _, id := range ids {
				results[id] = promptResult(rl, interactive)
			}
			next, exc := progress.Futures.Resume(results, print)
			if exc != nil {
				return fmt.Errorf("%s", exc.Error())
			}
			progress = next
		}
	}
}

// promptResult asks the user (via readline) what a suspended call should
// return, or answers None immediately on a non-interactive pipe.
func promptResult(rl *readline.Instance, interactive bool) sandbox.ExternalResult {
	if !interactive {
		return sandbox.Value(pyvalue.None)
	}
	line, err := rl.Readline()
	if err != nil {
		return sandbox.Value(pyvalue.None)
	}
	return sandbox.Value(parseLiteral(line))
}

// parseLiteral understands just enough of Python's literal grammar for
// an interactive host to answer a suspension with a scalar: None, True,
// False, an int, a float, or (falling back) a bare string. No parser
// package exists in this repo (spec.md §1); this is deliberately not one
// — it has no notion of expressions, only literal tokens.
func parseLiteral(line string) pyvalue.Value {
	s := strings.TrimSpace(line)
	switch s {
	case "", "None":
		return pyvalue.None
	case "True":
		return pyvalue.Bool(true)
	case "False":
		return pyvalue.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return pyvalue.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return pyvalue.Float(f)
	}
	return pyvalue.None
}

var snapshotCommand = &cli.Command{
	Name:  "snapshot",
	Usage: "inspect a dumped Snapshot/FutureSnapshot",
	Commands: []*cli.Command{
		{
			Name:      "inspect",
			Usage:     "print the pending call id(s) a snapshot file is waiting on",
			ArgsUsage: "<unit-file> <snapshot-file>",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				unitPath := cmd.Args().Get(0)
				snapPath := cmd.Args().Get(1)
				if unitPath == "" || snapPath == "" {
					return fmt.Errorf("usage: heysb snapshot inspect <unit-file> <snapshot-file>")
				}
				runner, err := loadRunner(unitPath)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(snapPath)
				if err != nil {
					return err
				}
				if snap, err := sandbox.Load(data, runner, iowriter.Discard); err == nil {
					fmt.Printf("Snapshot pending call_id=%d\n", snap.CallID())
					return nil
				}
				fs, err := sandbox.LoadFutureSnapshot(data, runner, iowriter.Discard)
				if err != nil {
					return fmt.Errorf("not a valid Snapshot or FutureSnapshot: %w", err)
				}
				fmt.Printf("FutureSnapshot pending call_ids=%v\n", fs.PendingCallIDs())
				return nil
			},
		},
	},
}

func loadRunner(unitPath string) (*sandbox.Runner, error) {
	unit, err := asm.LoadUnit(unitPath)
	if err != nil {
		return nil, fmt.Errorf("loading unit: %w", err)
	}
	return sandbox.New("<unit>", "", unit.Entry, unit.InputNames, unit.ExternalNames, unit.Functions, unit.Classes, unit.Interns), nil
}

func trackerFromFlag(cmd *cli.Command) tracker.Tracker {
	path := cmd.String("config")
	if path == "" {
		return config.Default.Tracker()
	}
	profile, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heysb: %v, falling back to defaults\n", err)
		return config.Default.Tracker()
	}
	return profile.Tracker()
}
