package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/Unlink/database/internal/server"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireArgs fails unless at least n positional arguments were given.
func requireArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() < n {
		return fmt.Errorf("usage: dbstructure %s %s", cmd.Name, cmd.ArgsUsage)
	}
	return nil
}

func tablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "List tables and views",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			tables, err := a.structure.Tables(ctx)
			if err != nil {
				return err
			}
			return printJSON(tables)
		}),
	}
}

func primaryKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "primary-key",
		Aliases:   []string{"pk"},
		Usage:     "Show the primary key of a table",
		ArgsUsage: "<table>",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			pk, err := a.structure.PrimaryKey(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return printJSON(pk)
		}),
	}
}

func sequenceCommand() *cli.Command {
	return &cli.Command{
		Name:      "sequence",
		Usage:     "Show the sequence feeding a table's primary key",
		ArgsUsage: "<table>",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			seq, ok, err := a.structure.PrimaryKeySequence(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(nil)
			}
			return printJSON(seq)
		}),
	}
}

func belongsToCommand() *cli.Command {
	return &cli.Command{
		Name:      "belongs-to",
		Usage:     "Show tables referenced by a table, or by one of its columns",
		ArgsUsage: "<table> [column]",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			table := cmd.Args().Get(0)
			if cmd.Args().Len() < 2 {
				refs, err := a.structure.BelongsToReferences(ctx, table)
				if err != nil {
					return err
				}
				return printJSON(refs)
			}
			ref, ok, err := a.structure.BelongsToReference(ctx, table, cmd.Args().Get(1))
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(nil)
			}
			return printJSON(ref)
		}),
	}
}

func hasManyCommand() *cli.Command {
	return &cli.Command{
		Name:      "has-many",
		Usage:     "Show tables referencing a table, or the columns one table uses to reference it",
		ArgsUsage: "<table> [target]",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if err := requireArgs(cmd, 1); err != nil {
				return err
			}
			table := cmd.Args().Get(0)
			if cmd.Args().Len() < 2 {
				refs, err := a.structure.HasManyReferences(ctx, table)
				if err != nil {
					return err
				}
				return printJSON(refs)
			}
			cols, ok, err := a.structure.HasManyReference(ctx, table, cmd.Args().Get(1))
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(nil)
			}
			return printJSON(cols)
		}),
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild the structure from the database and store it in the cache",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if err := a.structure.Rebuild(ctx); err != nil {
				return err
			}
			tables, err := a.structure.Tables(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "rebuilt structure: %d tables\n", len(tables))
			return nil
		}),
	}
}

func invalidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "invalidate",
		Usage: "Drop the cached structure so the next use rebuilds it",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			return a.structure.Invalidate(ctx)
		}),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the structure over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Sources: cli.EnvVars("SERVER_ADDR"),
			},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			addr := a.cfg.Server.Addr
			if v := cmd.String("addr"); v != "" {
				addr = v
			}
			return server.New(a.structure, a.log).ListenAndServe(ctx, addr)
		}),
	}
}
