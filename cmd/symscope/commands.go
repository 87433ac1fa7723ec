package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"symscope/internal/apperr"
	"symscope/internal/lsp"
	"symscope/internal/pkgmgr"
	"symscope/internal/report"
)

func commands() []*cli.Command {
	limitFlag := &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of results (0 uses search.max_results)",
	}
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the MCP tools over stdio",
			Action: serve,
		},
		{
			Name:      "list",
			Usage:     "List the types declared in a file or project",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Only types whose name contains this"},
			},
			Action: func(c *cli.Context) error {
				path, err := args(c, 1)
				if err != nil {
					return err
				}
				l, err := deps.queries.ListSymbols(c.Context, path[0], c.String("filter"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Types(l))
				return nil
			},
		},
		{
			Name:      "find",
			Aliases:   []string{"f"},
			Usage:     "Find types and members by name",
			ArgsUsage: "<path> <term>",
			Flags:     []cli.Flag{limitFlag},
			Action: func(c *cli.Context) error {
				a, err := args(c, 2)
				if err != nil {
					return err
				}
				r, err := deps.queries.FindSymbol(c.Context, a[0], a[1], c.Int("limit"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Symbols(r))
				return nil
			},
		},
		{
			Name:      "describe",
			Usage:     "Describe a type's bases and public members",
			ArgsUsage: "<path> <type>",
			Action: func(c *cli.Context) error {
				a, err := args(c, 2)
				if err != nil {
					return err
				}
				info, err := deps.queries.DescribeType(c.Context, a[0], a[1])
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.TypeInfo(info))
				return nil
			},
		},
		{
			Name:      "method",
			Usage:     "Show every overload of a method",
			ArgsUsage: "<path> <method|Type.Method>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Declaring type"},
			},
			Action: func(c *cli.Context) error {
				a, err := args(c, 2)
				if err != nil {
					return err
				}
				r, err := deps.queries.FindMethod(c.Context, a[0], a[1], c.String("type"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Methods(r))
				return nil
			},
		},
		{
			Name:      "external",
			Usage:     "Search the libraries a project references",
			ArgsUsage: "<project> <term>",
			Flags:     []cli.Flag{limitFlag},
			Action: func(c *cli.Context) error {
				a, err := args(c, 2)
				if err != nil {
					return err
				}
				r, err := deps.queries.FindExternal(c.Context, a[0], a[1], c.Int("limit"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.External(r))
				return nil
			},
		},
		{
			Name:      "analyze",
			Usage:     "Summarize a project's sources, references and diagnostics",
			ArgsUsage: "<project>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "Also search the project's sources for this term"},
			},
			Action: func(c *cli.Context) error {
				a, err := args(c, 1)
				if err != nil {
					return err
				}
				r, err := deps.queries.AnalyzeProject(c.Context, a[0], c.String("name"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Analysis(r))
				return nil
			},
		},
		{
			Name:      "symbols",
			Usage:     "Show the analyzer's outline of a file",
			ArgsUsage: "<file>",
			Action: func(c *cli.Context) error {
				a, err := args(c, 1)
				if err != nil {
					return err
				}
				path, err := filepath.Abs(a[0])
				if err != nil {
					return fail(err)
				}
				sess, err := deps.sessions.ForFile(path)
				if err != nil {
					return fail(err)
				}
				symbols, err := sess.DocumentSymbols(c.Context, path)
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.DocumentSymbols(path, symbols))
				return nil
			},
		},
		{
			Name:      "hover",
			Usage:     "Show the analyzer's hover text at a position",
			ArgsUsage: "<file> <line> <column>",
			Action: func(c *cli.Context) error {
				path, pos, err := position(c)
				if err != nil {
					return err
				}
				sess, err := deps.sessions.ForFile(path)
				if err != nil {
					return fail(err)
				}
				h, err := sess.Hover(c.Context, path, pos)
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Hover(h))
				return nil
			},
		},
		{
			Name:      "references",
			Usage:     "Find references to the symbol at a position",
			ArgsUsage: "<file> <line> <column>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "declaration", Aliases: []string{"d"}, Usage: "Include the declaration"},
			},
			Action: func(c *cli.Context) error {
				path, pos, err := position(c)
				if err != nil {
					return err
				}
				sess, err := deps.sessions.ForFile(path)
				if err != nil {
					return fail(err)
				}
				locs, err := sess.References(c.Context, path, pos, c.Bool("declaration"))
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Locations("References", locs))
				return nil
			},
		},
		{
			Name:      "definition",
			Usage:     "Find the definition of the symbol at a position",
			ArgsUsage: "<file> <line> <column>",
			Action: func(c *cli.Context) error {
				path, pos, err := position(c)
				if err != nil {
					return err
				}
				sess, err := deps.sessions.ForFile(path)
				if err != nil {
					return fail(err)
				}
				locs, err := sess.Definition(c.Context, path, pos)
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Locations("Definitions", locs))
				return nil
			},
		},
		{
			Name:      "workspace-symbols",
			Usage:     "Search the analyzer's workspace for symbols",
			ArgsUsage: "<file> <query>",
			Action: func(c *cli.Context) error {
				a, err := args(c, 2)
				if err != nil {
					return err
				}
				path, err := filepath.Abs(a[0])
				if err != nil {
					return fail(err)
				}
				sess, err := deps.sessions.ForFile(path)
				if err != nil {
					return fail(err)
				}
				symbols, err := sess.WorkspaceSymbols(c.Context, a[1])
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.WorkspaceSymbols(a[1], symbols))
				return nil
			},
		},
		{
			Name:  "analyzers",
			Usage: "List installed language analyzers",
			Action: func(c *cli.Context) error {
				installed, err := deps.manager.ListInstalled(pkgmgr.Binaries())
				if err != nil {
					return fail(err)
				}
				fmt.Print(report.Installations(deps.manager.PackagesDir(), installed))
				fmt.Printf("\nKnown analyzers: %s\n", strings.Join(pkgmgr.Names(), ", "))
				return nil
			},
		},
	}
}

// args returns exactly n positional arguments.
func args(c *cli.Context, n int) ([]string, error) {
	if c.NArg() != n {
		return nil, cli.Exit(fmt.Sprintf("usage: symscope %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
	}
	return c.Args().Slice(), nil
}

// position parses "<file> <line> <column>". Lines and columns are one-based
// on the command line, matching report output.
func position(c *cli.Context) (string, lsp.Position, error) {
	a, err := args(c, 3)
	if err != nil {
		return "", lsp.Position{}, err
	}
	line, err := strconv.Atoi(a[1])
	if err == nil && line < 1 {
		err = fmt.Errorf("line must be at least 1")
	}
	if err != nil {
		return "", lsp.Position{}, fail(fmt.Errorf("%w: bad line %q: %v", apperr.ErrInvalidQuery, a[1], err))
	}
	col, err := strconv.Atoi(a[2])
	if err == nil && col < 1 {
		err = fmt.Errorf("column must be at least 1")
	}
	if err != nil {
		return "", lsp.Position{}, fail(fmt.Errorf("%w: bad column %q: %v", apperr.ErrInvalidQuery, a[2], err))
	}
	path, err := filepath.Abs(a[0])
	if err != nil {
		return "", lsp.Position{}, fail(err)
	}
	return path, lsp.Position{Line: line - 1, Character: col - 1}, nil
}
