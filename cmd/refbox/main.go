package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlourenco/refbox/internal/bus"
	"github.com/mlourenco/refbox/internal/config"
	"github.com/mlourenco/refbox/internal/convert"
	"github.com/mlourenco/refbox/internal/entity"
	"github.com/mlourenco/refbox/internal/inbox"
	"github.com/mlourenco/refbox/internal/metadata"
	"github.com/mlourenco/refbox/internal/profile"
	"github.com/mlourenco/refbox/internal/store"
	"github.com/mlourenco/refbox/internal/tracker"
)

// app bundles everything a command needs. Each invocation opens the
// profile store directly; the daemon only handles housekeeping, so user
// actions never require it to be running.
type app struct {
	cfg     *config.Config
	db      *store.DB
	inbox   *inbox.Service
	tracker *tracker.Tracker
	engine  *convert.Engine
	jsonOut bool
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}
	if err := profile.EnsureDir(profileName); err != nil {
		fatal(err)
	}

	cfg := config.LoadOrDefault(profile.ConfigPath())
	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	tr := tracker.New(b)
	inboxSvc := inbox.NewService(db, b, logger)
	entitySvc := entity.NewService(db, tr, logger)

	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	pubmed := metadata.NewPubMedClient(cfg.PubMedBaseURL, timeout, logger)
	crossref := metadata.NewCrossrefClient(cfg.CrossrefBaseURL, timeout, logger)
	engine := convert.NewEngine(inboxSvc, pubmed, crossref, entitySvc, b, logger)

	a := &app{
		cfg:     cfg,
		db:      db,
		inbox:   inboxSvc,
		tracker: tr,
		engine:  engine,
		jsonOut: *jsonFlag,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "add":
		a.cmdAdd(args[1:])
	case "list":
		a.cmdList(args[1:])
	case "show":
		a.cmdShow(args[1:])
	case "convert":
		a.cmdConvert(ctx, args[1:])
	case "archive":
		a.cmdArchive(args[1:])
	case "restore":
		a.cmdRestore(args[1:])
	case "rm":
		a.cmdRemove(args[1:])
	case "purge":
		a.cmdPurge()
	case "counts":
		a.cmdCounts()
	case "search":
		a.cmdSearch(args[1:])
	case "refs":
		a.cmdRefs()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: refbox [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  add <input>       Capture raw input into the inbox")
	fmt.Fprintln(os.Stderr, "  list [status]     List inbox items (default: inbox)")
	fmt.Fprintln(os.Stderr, "  show <id>         Show one inbox item")
	fmt.Fprintln(os.Stderr, "  convert <id>      Convert an inbox item into an entity")
	fmt.Fprintln(os.Stderr, "  archive <id>      Archive an inbox item")
	fmt.Fprintln(os.Stderr, "  restore <id>      Move an archived item back to the inbox")
	fmt.Fprintln(os.Stderr, "  rm <id>           Delete an inbox item")
	fmt.Fprintln(os.Stderr, "  purge             Purge archived items past retention")
	fmt.Fprintln(os.Stderr, "  counts            Show item counts per status")
	fmt.Fprintln(os.Stderr, "  search <query>    Full-text search over inbox items")
	fmt.Fprintln(os.Stderr, "  refs              List converted references")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func (a *app) cmdAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "optional user-supplied title")
	note := fs.String("note", "", "optional free-text note")
	tags := fs.String("tags", "", "comma-separated tags")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox add [--title t] [--note n] [--tags a,b] <input>")
		os.Exit(1)
	}

	raw := strings.Join(fs.Args(), " ")
	opts := inbox.CaptureOpts{Title: *title, Note: *note}
	if *tags != "" {
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
	}

	it, err := a.inbox.Capture(raw, opts)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(it)
		return
	}
	fmt.Printf("%s  %s  %s\n", it.ID, it.DetectedType, it.Normalized)
}

func (a *app) cmdList(args []string) {
	status := store.StatusInbox
	if len(args) > 0 {
		status = args[0]
	}
	items, err := a.inbox.ListByStatus(status, 100, 0)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(items)
		return
	}
	if len(items) == 0 {
		fmt.Println("No items.")
		return
	}
	for _, it := range items {
		fmt.Printf("%s  %-5s  %s\n", it.ID, it.DetectedType, display(it))
	}
}

func (a *app) cmdShow(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox show <id>")
		os.Exit(1)
	}
	it, err := a.inbox.Get(args[0])
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(it)
		return
	}
	fmt.Printf("ID:       %s\n", it.ID)
	fmt.Printf("Raw:      %s\n", it.Raw)
	fmt.Printf("Type:     %s (%s)\n", it.DetectedType, it.Normalized)
	fmt.Printf("Status:   %s\n", it.Status)
	if it.Title != "" {
		fmt.Printf("Title:    %s\n", it.Title)
	}
	if it.Note != "" {
		fmt.Printf("Note:     %s\n", it.Note)
	}
	if len(it.Tags) > 0 {
		fmt.Printf("Tags:     %s\n", strings.Join(it.Tags, ", "))
	}
	if it.Status == store.StatusConverted {
		fmt.Printf("Entity:   %s/%s\n", it.ConvertedEntityType, it.ConvertedEntityID)
	}
	fmt.Printf("Created:  %s\n", time.Unix(it.CreatedAt, 0).Format(time.RFC3339))
}

func (a *app) cmdConvert(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	targetType := fs.String("target-type", "", "target entity type for text items (article|note)")
	targetID := fs.String("target-id", "", "existing entity id for text items converted to notes")
	useNote := fs.Bool("use-note", false, "use the item's note field as the note content")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox convert [--target-type t] [--target-id id] [--use-note] <id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	var res convert.Result
	if *targetType != "" {
		target := convert.Target{EntityType: *targetType, EntityID: *targetID}
		res = a.engine.ConvertText(ctx, id, target, *useNote)
	} else {
		res = a.engine.AutoConvert(ctx, id)
	}

	if a.jsonOut {
		outputJSON(res)
	} else if res.Success {
		fmt.Printf("Converted to %s %s: %s\n", res.EntityType, res.EntityID, res.Title)
	} else {
		fmt.Fprintf(os.Stderr, "conversion failed: %s\n", res.Err)
	}
	a.reportFailedMutations()
	if !res.Success {
		os.Exit(1)
	}
}

func (a *app) cmdArchive(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox archive <id>")
		os.Exit(1)
	}
	if err := a.inbox.Archive(args[0]); err != nil {
		fatal(err)
	}
	fmt.Println("Archived.")
}

func (a *app) cmdRestore(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox restore <id>")
		os.Exit(1)
	}
	if err := a.inbox.Restore(args[0]); err != nil {
		fatal(err)
	}
	fmt.Println("Restored.")
}

func (a *app) cmdRemove(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox rm <id>")
		os.Exit(1)
	}
	if err := a.inbox.Delete(args[0]); err != nil {
		fatal(err)
	}
	fmt.Println("Deleted.")
}

func (a *app) cmdPurge() {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
	n, err := a.inbox.PurgeArchived(cutoff)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Purged %d archived item(s).\n", n)
}

func (a *app) cmdCounts() {
	counts, err := a.inbox.CountByStatus()
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(counts)
		return
	}
	fmt.Printf("inbox:     %d\n", counts[store.StatusInbox])
	fmt.Printf("archived:  %d\n", counts[store.StatusArchived])
	fmt.Printf("converted: %d\n", counts[store.StatusConverted])
}

func (a *app) cmdSearch(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: refbox search <query>")
		os.Exit(1)
	}
	results, err := a.db.SearchInbox(strings.Join(args, " "), 50)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("%s  %-5s  %s\n", r.Item.ID, r.Item.DetectedType, r.Snippet)
	}
}

func (a *app) cmdRefs() {
	refs, err := a.db.ListReferences(100, 0)
	if err != nil {
		fatal(err)
	}
	if a.jsonOut {
		outputJSON(refs)
		return
	}
	if len(refs) == 0 {
		fmt.Println("No references.")
		return
	}
	for _, r := range refs {
		year := ""
		if r.Year > 0 {
			year = fmt.Sprintf(" (%d)", r.Year)
		}
		fmt.Printf("%s  %s%s\n", r.ID, r.Title, year)
	}
}

// reportFailedMutations surfaces writes the tracker recorded as failed
// during this invocation so the user can decide what to retry.
func (a *app) reportFailedMutations() {
	failed := a.tracker.Failed()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%d write(s) failed:\n", len(failed))
	for _, m := range failed {
		fmt.Fprintf(os.Stderr, "  [%d] %s %s: %s (%s)\n", m.ID, m.Kind, m.Entity, m.Description, m.Err)
	}
}

func display(it store.InboxItem) string {
	if it.Title != "" {
		return it.Title
	}
	return it.Normalized
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
