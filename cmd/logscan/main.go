// Command logscan is a thin host over the indexing and search core: it
// exercises the import_path / search_logs / get_workspace_info /
// delete_workspace library surface from a terminal. The core itself is
// an in-process library; everything interactive (progress rendering,
// query tokenisation) is host policy, not core behaviour.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/logscan/internal/contract"
	"github.com/standardbeagle/logscan/internal/debug"
	"github.com/standardbeagle/logscan/internal/ingest"
	"github.com/standardbeagle/logscan/internal/query"
	"github.com/standardbeagle/logscan/internal/search"
	"github.com/standardbeagle/logscan/internal/types"
	"github.com/standardbeagle/logscan/internal/workspace"
)

func main() {
	app := &cli.App{
		Name:                   "logscan",
		Usage:                  "Index and search log archives",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Directory holding workspaces",
				Value:   ".logscan",
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace name",
				Value:   "default",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Trace ingest and search internals to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.SetEnabled(true)
				debug.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			importCommand(),
			searchCommand(),
			infoCommand(),
			catCommand(),
			deleteCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "logscan: %v\n", err)
		os.Exit(1)
	}
}

func openWorkspace(c *cli.Context) (*workspace.Workspace, error) {
	name := c.String("workspace")
	root := filepath.Join(c.String("root"), name)
	return workspace.Open(name, root)
}

// signalContext cancels on SIGINT/SIGTERM so long imports and searches
// stop at the next blob boundary instead of dying mid-transaction.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a file, directory, or archive into the workspace",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("import: expected exactly one path argument")
			}
			ws, err := openWorkspace(c)
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx, cancel := signalContext()
			defer cancel()

			progress := make(chan ingest.Progress, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for p := range progress {
					ev := contract.FromIngestProgress(p)
					fmt.Fprintf(os.Stderr, "\r%3.0f%% %s", ev.Progress, ev.CurrentFile)
				}
				fmt.Fprintln(os.Stderr)
			}()

			report, err := ingest.New(ws).Import(ctx, c.Args().First(), progress)
			close(progress)
			<-done
			if err != nil {
				return err
			}
			return printJSON(contract.FromReport(report))
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the workspace's indexed content",
		ArgsUsage: "<term>[|<term>...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "regex", Aliases: []string{"e"}, Usage: "Treat every term as a regular expression"},
			&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"s"}, Usage: "Match case exactly"},
			&cli.BoolFlag{Name: "any", Usage: "Match lines containing any term (OR) instead of all (AND)"},
			&cli.IntFlag{Name: "max", Aliases: []string{"n"}, Usage: "Maximum entries to return", Value: 1000},
			&cli.StringFlag{Name: "files", Usage: "Glob over virtual paths, e.g. '**/*.log'"},
			&cli.StringSliceFlag{Name: "level", Usage: "Only lines at these log levels"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("search: expected exactly one query argument")
			}
			ws, err := openWorkspace(c)
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx, cancel := signalContext()
			defer cancel()

			q := buildQuery(c, c.Args().First())
			exec := search.New(ws)
			results, err := exec.Execute(ctx, q, c.Int("max"))
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
}

// buildQuery applies the host tokenisation convention: user
// input splits on '|' into AND'ed, enabled terms. --any flips the
// global operator to OR.
func buildQuery(c *cli.Context, raw string) query.Query {
	op := query.OpAnd
	if c.Bool("any") {
		op = query.OpOr
	}

	var terms []query.Term
	for i, part := range strings.Split(raw, "|") {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		terms = append(terms, query.Term{
			ID:            "t" + strconv.Itoa(i+1),
			Value:         value,
			Operator:      query.OpAnd,
			Enabled:       true,
			CaseSensitive: c.Bool("case-sensitive"),
			IsRegex:       c.Bool("regex"),
			Source:        query.SourceUser,
		})
	}

	q := query.Query{Terms: terms, GlobalOperator: op}
	if pat := c.String("files"); pat != "" || len(c.StringSlice("level")) > 0 {
		q.Filters = &query.Filters{FilePattern: pat, Levels: c.StringSlice("level")}
	}
	return q
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show workspace statistics",
		Action: func(c *cli.Context) error {
			ws, err := openWorkspace(c)
			if err != nil {
				return err
			}
			defer ws.Close()

			stat, err := ws.Stat()
			if err != nil {
				return err
			}
			return printJSON(contract.WorkspaceInfo{
				ID:        stat.ID,
				Name:      stat.ID,
				FileCount: stat.FileCount,
				TotalSize: stat.TotalSize,
				Status:    "ready",
			})
		},
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Stream a stored blob to stdout by its content hash",
		ArgsUsage: "<sha256>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "Re-hash the blob and fail on mismatch before printing"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("cat: expected exactly one hash argument")
			}
			ws, err := openWorkspace(c)
			if err != nil {
				return err
			}
			defer ws.Close()

			hash := types.Hash(c.Args().First())
			if c.Bool("verify") {
				if err := ws.CAS.VerifyIntegrity(hash); err != nil {
					return err
				}
			}
			rc, err := ws.CAS.Read(hash)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(os.Stdout, rc)
			return err
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-workspace",
		Usage: "Delete the workspace: every record and every blob",
		Action: func(c *cli.Context) error {
			ws, err := openWorkspace(c)
			if err != nil {
				return err
			}
			if err := ws.Delete(); err != nil {
				return err
			}
			return printJSON(contract.WorkspaceUpdated{WorkspaceID: ws.ID, Action: "deleted"})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
