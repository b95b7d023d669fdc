// receiptctl is a command line client for the receipt desk API.
//
//	receiptctl [--server URL] [--token T] <command> [flags]
//
// Commands: login, logout, list, get, user, submit, update, delete, analyze, health.
// Results are printed as JSON.
package main

import (
	"context"       // Request scoping
	"encoding/json" // Output
	"errors"        // Error values
	"fmt"           // Output
	"io"            // Output target
	"mime"          // Receipt content type
	"os"            // Args and files
	"path/filepath" // Receipt extension
	"strconv"       // Ticket ids
	"time"          // Command timeout

	"receipt_desk/internal/client" // API client

	"github.com/sirupsen/logrus" // Logging library
	"github.com/spf13/pflag"     // Flag parsing
)

const usage = `usage: receiptctl [--server URL] [--token T] <command> [flags]

commands:
  login    --username U --password P   print a session token
  logout                               revoke the session of --token
  list     [--status S] [--search Q] [--user ID]
  get      <id>
  user     <userId>                    tickets of one submitter
  submit   --user ID --name N --iban I --method M --amount A --date D --file PATH
  update   <id> [--status S] [--note N]
  delete   <id>
  analyze  <id> [--text T]             advisory receipt heuristics
  health
`

func main() {
	logrus.SetOutput(os.Stderr)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := pflag.NewFlagSet("receiptctl", pflag.ContinueOnError)
	global.SetInterspersed(false) // Stop at the command name
	server := global.String("server", envOr("RECEIPT_DESK_URL", "http://localhost:3001"), "API base URL")
	token := global.String("token", os.Getenv("RECEIPT_DESK_TOKEN"), "admin bearer token")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	c := client.New(*server)
	c.Token = *token
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, cmdArgs := rest[0], rest[1:]
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	switch cmd {
	case "login":
		username := fs.String("username", "", "admin username")
		password := fs.String("password", "", "admin password")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		login, err := c.Login(ctx, *username, *password)
		if err != nil {
			return err
		}
		return printJSON(out, login)

	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"message": "Logged out"})

	case "list":
		status := fs.String("status", "", "pending, approved, rejected or all")
		search := fs.String("search", "", "name, IBAN or method substring")
		user := fs.String("user", "", "submitter id")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		return printJSON(out, c.ListTickets(ctx, *status, *search, *user))

	case "get":
		id, err := idArg(fs, cmdArgs)
		if err != nil {
			return err
		}
		ticket := c.GetTicket(ctx, id)
		if ticket == nil {
			return fmt.Errorf("ticket %d not found", id)
		}
		return printJSON(out, ticket)

	case "user":
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("user takes exactly one userId")
		}
		return printJSON(out, c.GetTicketsByUser(ctx, fs.Arg(0)))

	case "submit":
		var s client.Submission
		fs.StringVar(&s.UserID, "user", "", "submitter id")
		fs.StringVar(&s.RecipientName, "name", "", "recipient name")
		fs.StringVar(&s.RecipientIban, "iban", "", "recipient IBAN")
		fs.StringVar(&s.InvestmentMethod, "method", "", "bank label")
		fs.StringVar(&s.InvestmentAmount, "amount", "", "transferred amount")
		fs.StringVar(&s.InvestmentDateTime, "date", "", "transfer time, e.g. 2025-05-02T10:30")
		path := fs.String("file", "", "receipt image or PDF")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		if *path == "" {
			return errors.New("--file is required")
		}
		data, err := os.ReadFile(*path)
		if err != nil {
			return err
		}
		s.File = data
		s.FileName = filepath.Base(*path)
		s.ContentType = mime.TypeByExtension(filepath.Ext(*path))
		ticket, err := c.CreateTicket(ctx, s)
		if err != nil {
			return err
		}
		return printJSON(out, ticket)

	case "update":
		status := fs.String("status", "", "new status")
		note := fs.String("note", "", "admin note")
		id, err := idArg(fs, cmdArgs)
		if err != nil {
			return err
		}
		var u client.Update
		if fs.Changed("status") {
			u.Status = status
		}
		if fs.Changed("note") {
			u.AdminNote = note
		}
		ticket, err := c.UpdateTicket(ctx, id, u)
		if err != nil {
			return err
		}
		return printJSON(out, ticket)

	case "delete":
		id, err := idArg(fs, cmdArgs)
		if err != nil {
			return err
		}
		if err := c.DeleteTicket(ctx, id); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"message": "Ticket deleted successfully"})

	case "analyze":
		text := fs.String("text", "", "receipt text, OCR is used when empty")
		id, err := idArg(fs, cmdArgs)
		if err != nil {
			return err
		}
		result, err := c.Analyze(ctx, id, *text)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "health":
		report, err := c.Health(ctx)
		if report != nil {
			if perr := printJSON(out, report); perr != nil {
				return perr
			}
		}
		return err
	}
	global.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

// idArg parses the command flags and the single ticket id argument
func idArg(fs *pflag.FlagSet, args []string) (uint, error) {
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if fs.NArg() != 1 {
		return 0, fmt.Errorf("%s takes exactly one ticket id", fs.Name())
	}
	id, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid ticket id %q", fs.Arg(0))
	}
	return uint(id), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
