package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/pwflint/obsidian-things-export/internal/config"
	"github.com/pwflint/obsidian-things-export/internal/daemon"
	"github.com/pwflint/obsidian-things-export/internal/export"
	storagefs "github.com/pwflint/obsidian-things-export/internal/storage/fs"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

// Exit codes
const (
	ExitOK          = 0
	ExitUsage       = 2
	ExitNotFound    = 3
	ExitUnavailable = 5
	ExitInternal    = 10
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

type GlobalFlags struct {
	Root       string
	JSON       bool
	StdoutJSON bool
	ExportDir  string
	Plain      bool
	Quiet      bool
	Verbose    bool
}

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 < len(args) {
					flags = append(flags, args[i+1])
					i++
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}

func Run(args []string) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return ExitUsage
	}

	if len(rest) == 0 {
		printHelp(stderr)
		return ExitUsage
	}

	cmd := rest[0]
	cmdArgs := rest[1:]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		printHelp(stdout)
		return ExitOK
	}

	cs, err := config.Open(gf.Root)
	if err != nil {
		return fail("notelink", err)
	}
	setupLogger(gf)

	switch cmd {
	case "serve", "daemon":
		return cmdServe(cs, gf, cmdArgs)
	case "export":
		return cmdExport(cs, gf, cmdArgs)
	case "callback":
		return cmdCallback(cs, gf, cmdArgs)
	case "pending":
		return cmdPending(cs, gf, cmdArgs)
	case "parse", "show":
		return cmdParse(cs, gf, cmdArgs)
	case "tasks":
		return cmdTasks(cs, gf, cmdArgs)
	case "urls":
		return cmdURLs(cs, gf, cmdArgs)
	case "link":
		return cmdLink(cs, gf, cmdArgs)
	case "linked":
		return cmdLinked(cs, gf, cmdArgs)
	case "check":
		return cmdCheck(cs, gf, cmdArgs)
	case "config", "cfg":
		return cmdConfig(cs, gf, cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return ExitUsage
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `notelink: export markdown notes as Things projects

Usage:
  notelink [global flags] <command> [args]

Global flags:
  --root <path>    Settings root (default: ~/.notelink or NOTELINK_ROOT)
  --json           Write JSON output to <root>/exports (no stdout JSON)
  --stdout-json    Allow JSON to stdout
  --export-dir     Override export directory (default: <root>/exports)
  --plain          TSV output
  --quiet
  --verbose

Commands:
  serve [--listen <addr>] [--vault <dir>]
  export <note.md>
  callback <url>
  pending
  parse <note.md> [--yaml]
  tasks <note.md> [--open|--done] [--due]
  urls <note.md>
  link show <note.md>
  link rm <note.md>
  link set <note.md> <id>
  linked [dir]
  check [--open]
  config show
  config set <key> <value>
`)
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{Root: config.DefaultRoot()}

	out := make([]string, 0, len(args))
	skip := 0

	for i := 0; i < len(args); i++ {
		if skip > 0 {
			skip--
			continue
		}
		a := args[i]
		switch a {
		case "--root":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--root requires a value")
			}
			gf.Root = args[i+1]
			skip = 1
		case "--json":
			gf.JSON = true
		case "--stdout-json":
			gf.StdoutJSON = true
		case "--export-dir":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--export-dir requires a value")
			}
			gf.ExportDir = args[i+1]
			skip = 1
		case "--plain":
			gf.Plain = true
		case "--quiet":
			gf.Quiet = true
		case "--verbose":
			gf.Verbose = true
		default:
			out = append(out, a)
		}
	}

	if gf.StdoutJSON && !gf.JSON {
		return gf, nil, errors.New("--stdout-json requires --json")
	}
	if gf.ExportDir == "" {
		gf.ExportDir = filepath.Join(config.ExpandHome(gf.Root), "exports")
	}
	return gf, out, nil
}

// setupLogger installs the process logger: text on a terminal, JSON otherwise.
func setupLogger(gf GlobalFlags) {
	level := new(slog.LevelVar)
	switch {
	case gf.Verbose:
		level.Set(slog.LevelDebug)
	case gf.Quiet:
		level.Set(slog.LevelWarn)
	default:
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(stderr) {
		handler = slog.NewTextHandler(stderr, opts)
	} else {
		handler = slog.NewJSONHandler(stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, export.ErrDocumentNotFound),
		errors.Is(err, export.ErrUnknownOperation),
		errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, export.ErrNoActiveTarget),
		errors.Is(err, things.ErrUnknownCallback),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, config.ErrUnknownKey):
		return ExitUsage
	case errors.Is(err, daemon.ErrUnavailable):
		return ExitUnavailable
	default:
		return ExitInternal
	}
}

func fail(cmd string, err error) int {
	fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
	return exitCode(err)
}

func cmdConfig(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: notelink config <show|set> ...")
		return ExitUsage
	}
	switch args[0] {
	case "show":
		// handled below
	case "set":
		return cmdConfigSet(cs, gf, args[1:])
	default:
		fmt.Fprintln(stderr, "Usage: notelink config <show|set> ...")
		return ExitUsage
	}

	cfg := cs.Config()
	payload := map[string]any{
		"root":        cs.Root,
		"config_path": cs.Path(),
		"exists":      cs.Exists(),
		"config":      cfg,
	}
	if gf.JSON {
		return emitJSON(gf, "config", payload)
	}

	if gf.Plain {
		w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		fmt.Fprintf(w, "root\t%s\n", cs.Root)
		fmt.Fprintf(w, "config_path\t%s\n", cs.Path())
		fmt.Fprintf(w, "exists\t%t\n", cs.Exists())
		for _, kv := range cfg.Entries() {
			fmt.Fprintf(w, "%s\t%s\n", kv[0], kv[1])
		}
		_ = w.Flush()
		return ExitOK
	}

	fmt.Fprintln(stdout, "Config")
	fmt.Fprintln(stdout, "  Root:", cs.Root)
	if cs.Exists() {
		fmt.Fprintln(stdout, "  Config file:", cs.Path())
	} else {
		fmt.Fprintln(stdout, "  Config file:", cs.Path(), "(not found; defaults shown)")
	}
	fmt.Fprintln(stdout)
	for _, kv := range cfg.Entries() {
		value := kv[1]
		if value == "" {
			value = "(not set)"
		}
		fmt.Fprintf(stdout, "  %s: %s\n", kv[0], value)
	}
	return ExitOK
}

func cmdConfigSet(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: notelink config set <key> <value>")
		return ExitUsage
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	value := strings.TrimSpace(strings.Join(args[1:], " "))
	if err := cs.Set(key, value); err != nil {
		if errors.Is(err, config.ErrUnknownKey) {
			fmt.Fprintln(stderr, "Unknown config key:", key)
			fmt.Fprintln(stderr, "Allowed keys:", strings.Join(config.Keys(), ", "))
			return ExitUsage
		}
		return fail("config set", err)
	}
	if !gf.Quiet {
		fmt.Fprintf(stdout, "Updated %s\n", key)
	}
	return ExitOK
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// emitJSON writes payload to stdout with --stdout-json, else to an export file.
func emitJSON(gf GlobalFlags, base string, payload any) int {
	if gf.StdoutJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return fail(base, err)
		}
		return ExitOK
	}
	path, err := writeJSONExport(gf, base, payload)
	if err != nil {
		return fail(base, err)
	}
	if !gf.Quiet {
		fmt.Fprintln(stdout, "Wrote JSON to:", path)
	}
	return ExitOK
}

func writeJSONExport(gf GlobalFlags, base string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return writeExportFile(gf.ExportDir, base, "json", data)
}

func writeExportFile(dir, base, ext string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("export directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	t := time.Now().UTC()
	ts := t.Format("20060102-150405")
	name := fmt.Sprintf("%s-%s.%s", base, ts, ext)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		name = fmt.Sprintf("%s-%s-%d.%s", base, ts, i, ext)
		path = filepath.Join(dir, name)
	}
	if err := storagefs.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
