package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"eventsched/internal/auth"
	"eventsched/internal/ics"
	"eventsched/internal/jobs"
	"eventsched/internal/model"
	"eventsched/internal/query"
	"eventsched/internal/store"
)

// parseWhen accepts RFC 3339 or local "2006-01-02T15:04[:05]".
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return store.ParseDateTime(s, loc)
}

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
		&cli.StringFlag{Name: "start", Required: true, Usage: "start time, e.g. 2025-01-06T09:00"},
		&cli.StringFlag{Name: "end", Required: true, Usage: "end time, e.g. 2025-01-06T10:00"},
	}
}

func recurrenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "every", Required: true, Usage: "interval token: <n>d, <n>w or <n>m"},
		&cli.IntFlag{Name: "count", Usage: "total occurrences including the first"},
		&cli.StringFlag{Name: "until", Usage: "last date an occurrence may start on (YYYY-MM-DD)"},
	}
}

func readRange(c *cli.Context, loc *time.Location) (time.Time, time.Time, error) {
	start, err := parseWhen(c.String("start"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := parseWhen(c.String("end"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}

func readRecurrence(c *cli.Context) (model.Interval, int, *model.Date, error) {
	iv, err := model.ParseInterval(c.String("every"))
	if err != nil {
		return model.Interval{}, 0, nil, err
	}
	var until *model.Date
	if s := c.String("until"); s != "" {
		d, err := model.ParseDate(s)
		if err != nil {
			return model.Interval{}, 0, nil, err
		}
		until = &d
	}
	return iv, c.Int("count"), until, nil
}

func argID(c *cli.Context) (int, error) {
	if c.NArg() != 1 {
		return 0, errors.New("expected exactly one event id")
	}
	id, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return 0, fmt.Errorf("event id %q: %w", c.Args().First(), err)
	}
	return id, nil
}

// checkPersisted turns a write the store refused into a command failure.
// The in-memory change is lost with the process.
func (e *env) checkPersisted() error {
	if err := e.cat.PersistErr(); err != nil {
		return fmt.Errorf("change not saved: %w", err)
	}
	return nil
}

func printEvents(w io.Writer, events []model.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tTITLE\tDESCRIPTION")
	for _, ev := range query.SortByStart(events) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			ev.ID, store.FormatDateTime(ev.Start), store.FormatDateTime(ev.End), ev.Title, ev.Description)
	}
	tw.Flush()
}

func printIDs(w io.Writer, ids []int) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	fmt.Fprintf(w, "created %d events: %s\n", len(ids), strings.Join(parts, " "))
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create a single event.",
		Flags: eventFlags(),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			start, end, err := readRange(c, e.loc)
			if err != nil {
				return err
			}
			ev, err := e.cat.Create(c.String("title"), c.String("description"), start, end)
			if err != nil {
				return err
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "created event %d\n", ev.ID)
			return nil
		},
	}
}

func recurCommand() *cli.Command {
	return &cli.Command{
		Name:      "recur",
		Usage:     "Create a recurring series, or turn an existing event into one with --id.",
		Flags: append(append(eventFlagsOptional(), recurrenceFlags()...),
			&cli.IntFlag{Name: "id", Usage: "existing event to anchor the series on"}),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			iv, count, until, err := readRecurrence(c)
			if err != nil {
				return err
			}

			var ids []int
			if c.IsSet("id") {
				ids, err = e.cat.GenerateRecurrence(c.Int("id"), iv, count, until)
			} else {
				if c.String("title") == "" || c.String("start") == "" || c.String("end") == "" {
					return errors.New("--title, --start and --end are required without --id")
				}
				start, end, rerr := readRange(c, e.loc)
				if rerr != nil {
					return rerr
				}
				_, ids, err = e.cat.CreateRecurring(c.String("title"), c.String("description"), start, end, iv, count, until)
			}
			if err != nil {
				return err
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			printIDs(c.App.Writer, ids)
			return nil
		},
	}
}

// eventFlagsOptional mirrors eventFlags without required markers, for
// commands where the event may come from --id instead.
func eventFlagsOptional() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
		&cli.StringFlag{Name: "start"},
		&cli.StringFlag{Name: "end"},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Replace the title, description and times of an event.",
		ArgsUsage: "<id>",
		Flags:     eventFlags(),
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return err
			}
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			start, end, err := readRange(c, e.loc)
			if err != nil {
				return err
			}
			ok, err := e.cat.Update(id, c.String("title"), c.String("description"), start, end)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("event %d not found", id)
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "updated event %d\n", id)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an event and any recurrence anchored on it.",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := argID(c)
			if err != nil {
				return err
			}
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			if !e.cat.Delete(id) {
				return fmt.Errorf("event %d not found", id)
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted event %d\n", id)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all events, or today's with --today.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "today", Usage: "only events on today's date"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			events := e.cat.List()
			if c.Bool("today") {
				events = query.Today(events, time.Now().In(e.loc))
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search by --date, by --from/--to range, or by --title keyword.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "from", Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "to", Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "title", Usage: "case-insensitive keyword"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			events := e.cat.List()
			switch {
			case c.IsSet("date"):
				d, err := model.ParseDate(c.String("date"))
				if err != nil {
					return err
				}
				events = query.SearchByDate(events, d)
			case c.IsSet("from") || c.IsSet("to"):
				from, err := model.ParseDate(c.String("from"))
				if err != nil {
					return err
				}
				to, err := model.ParseDate(c.String("to"))
				if err != nil {
					return err
				}
				events = query.SearchByDateRange(events, from, to)
			case c.IsSet("title"):
				events = query.SearchByTitle(events, c.String("title"))
			default:
				return errors.New("one of --date, --from/--to or --title is required")
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func conflictsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conflicts",
		Usage: "List events overlapping a proposed time range.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Required: true},
			&cli.StringFlag{Name: "end", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			start, end, err := readRange(c, e.loc)
			if err != nil {
				return err
			}
			conflicts := query.CheckConflicts(e.cat.List(), start, end)
			if len(conflicts) == 0 {
				fmt.Fprintln(c.App.Writer, "no conflicts")
				return nil
			}
			printEvents(c.App.Writer, conflicts)
			return nil
		},
	}
}

func upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:  "upcoming",
		Usage: "List events starting within the next --minutes, or the next event with --next.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "minutes", Value: 60},
			&cli.BoolFlag{Name: "next", Usage: "show only the next event"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			now := time.Now().In(e.loc)
			if c.Bool("next") {
				ev, ok := query.Next(e.cat.List(), now)
				if !ok {
					fmt.Fprintln(c.App.Writer, "no upcoming events")
					return nil
				}
				printEvents(c.App.Writer, []model.Event{ev})
				return nil
			}
			if c.Int("minutes") < 0 {
				return errors.New("--minutes must not be negative")
			}
			within := time.Duration(c.Int("minutes")) * time.Minute
			printEvents(c.App.Writer, query.Upcoming(e.cat.List(), now, within))
			return nil
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write a backup file, by default a timestamped one in the backup directory.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "explicit backup path"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			path := c.String("out")
			if path == "" {
				if path, err = jobs.NewBackup(e.cat, e.cfg.Backup.Dir).Write(); err != nil {
					return err
				}
			} else if err := e.cat.Backup(path); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "backup written to %s\n", path)
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Replace the catalog with a backup, or merge it in with --append.",
		ArgsUsage: "<backup file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "append", Usage: "merge into the current catalog instead of replacing it"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one backup file")
			}
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.cat.Restore(c.Args().First(), c.Bool("append")); err != nil {
				return err
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "restored %d events, %d recurrences; next id %d\n",
				len(e.cat.List()), len(e.cat.Recurrences()), e.cat.NextID())
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all events as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			var buf bytes.Buffer
			if err := ics.Export(&buf, query.SortByStart(e.cat.List()), time.Now()); err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return os.WriteFile(out, buf.Bytes(), 0o600)
			}
			_, err = c.App.Writer.Write(buf.Bytes())
			return err
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import events from an iCalendar file or --url.",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "fetch the calendar over HTTP(S)"},
			&cli.DurationFlag{Name: "horizon", Value: 365 * 24 * time.Hour, Usage: "expansion window for endless rules"},
		},
		Action: func(c *cli.Context) error {
			var (
				data []byte
				err  error
			)
			switch {
			case c.String("url") != "":
				ctx, cancel := context.WithTimeout(c.Context, time.Minute)
				defer cancel()
				data, err = ics.NewFetcher(nil).Fetch(ctx, c.String("url"))
			case c.NArg() == 1:
				data, err = os.ReadFile(c.Args().First())
			default:
				return errors.New("give a file or --url")
			}
			if err != nil {
				return err
			}

			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := ics.PlanConfig{
				Horizon:                c.Duration("horizon"),
				MaxOccurrencesPerEvent: e.cfg.Recurrence.MaxOccurrences,
			}
			sum, err := ics.Import(e.cat, bytes.NewReader(data), e.loc, cfg)
			if err != nil {
				return err
			}
			if err := e.checkPersisted(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "imported %d events (%d series, %d flattened, %d skipped)\n",
				sum.Events, sum.Series, sum.Flattened, sum.Skipped)
			for _, uid := range sum.Truncated {
				fmt.Fprintf(c.App.Writer, "truncated: %s\n", uid)
			}
			return nil
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "Hash a password for basic_auth.password_hash.",
		Action: func(c *cli.Context) error {
			password, err := readPassword("Enter password:   ")
			if err != nil {
				return err
			}
			confirm, err := readPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "basic_auth:\n  username: <name>\n  password_hash: %q\n", hash)
			return nil
		},
	}
}

var stdin = bufio.NewReader(os.Stdin)

// readPassword reads without echo from a terminal, or one line from a pipe.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(password), err
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
