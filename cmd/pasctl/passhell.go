package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/finnish-heritage-agency/passari-workflow/internal/app"
)

// pasShellCommand is a minimal interactive SQL REPL over the workflow
// database, the Go-idiomatic stand-in for original_source's pas_shell.py
// (an IPython console dropped into a live ORM session) — Go has no
// equivalent live-object console, so this offers the same "poke at the
// database from a running pasctl" use case via raw SQL instead.
func pasShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "pas-shell",
		Usage: "interactive SQL shell against the workflow database",
		Action: func(c *cli.Context) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				return runShell(ctx, a)
			})
		},
	}
}

func runShell(ctx context.Context, a *app.App) error {
	fmt.Println("pas-shell: enter SQL statements terminated by ';', or \\q to quit")
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder

	prompt := func() {
		if buf.Len() == 0 {
			fmt.Print("pas> ")
		} else {
			fmt.Print("...> ")
		}
	}

	prompt()
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if buf.Len() == 0 && (trimmed == "\\q" || trimmed == "quit" || trimmed == "exit") {
			return nil
		}
		buf.WriteString(line)
		buf.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			if stmt != "" {
				runStatement(ctx, a, stmt)
			}
		}
		prompt()
	}
	fmt.Println()
	return scanner.Err()
}

func runStatement(ctx context.Context, a *app.App, stmt string) {
	lowered := strings.ToLower(strings.TrimSpace(stmt))
	db := a.Postgres.DB().WithContext(ctx)

	if strings.HasPrefix(lowered, "select") || strings.HasPrefix(lowered, "with") {
		var rows []map[string]any
		if err := db.Raw(stmt).Scan(&rows).Error; err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		fmt.Println(string(out))
		return
	}

	result := db.Exec(stmt)
	if result.Error != nil {
		fmt.Fprintln(os.Stderr, "error:", result.Error)
		return
	}
	fmt.Printf("OK, %d row(s) affected\n", result.RowsAffected)
}
