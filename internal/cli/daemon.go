package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pwflint/obsidian-things-export/internal/config"
	"github.com/pwflint/obsidian-things-export/internal/daemon"
	"github.com/pwflint/obsidian-things-export/internal/export"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

const clientTimeout = 30 * time.Second

func cmdServe(cs *config.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{
		"--listen": true,
		"--vault":  true,
	})
	fs := newFlagSet("serve")
	listen := fs.String("listen", "", "Listen address (default: daemon.listen)")
	vault := fs.String("vault", "", "Root for relative note paths (default: daemon.vault)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	cfg := cs.Config()
	addr := firstNonEmpty(*listen, cfg.Daemon.Listen)
	root := firstNonEmpty(*vault, cfg.Daemon.Vault)

	var notifier export.Notifier
	if !gf.Quiet {
		notifier = &export.WriterNotifier{W: stdout}
	}
	cfg.Daemon.Vault = root
	builder := things.NewBuilder(cfg.ThingsOptions(), things.NewCommandDispatcher(cfg.Things.Opener))
	rec := export.New(exportConfig(cfg, export.FileHost{Root: root}, builder, notifier, slog.Default()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := daemon.NewServer(rec, slog.Default()).ListenAndServe(ctx, addr); err != nil {
		return fail("serve", err)
	}
	return ExitOK
}

func exportConfig(cfg config.Config, host export.Host, b *things.Builder, n export.Notifier, logger *slog.Logger) export.Config {
	return export.Config{
		Host:      host,
		Builder:   b,
		Notifier:  n,
		Logger:    logger,
		Note:      cfg.NoteOptions(),
		Backlink:  cfg.Notes.Backlink,
		VaultRoot: cfg.Daemon.Vault,
		VaultName: cfg.Notes.VaultName,
	}
}

func newClient(cs *config.Store) *daemon.Client {
	return daemon.NewClient(cs.Config().Daemon.Listen)
}

func cmdExport(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: notelink export <note.md>")
		return ExitUsage
	}
	path, err := filepath.Abs(config.ExpandHome(args[0]))
	if err != nil {
		return fail("export", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	res, err := newClient(cs).Export(ctx, path)
	if err != nil {
		return fail("export", err)
	}
	if gf.JSON {
		return emitJSON(gf, "export", res)
	}
	if gf.Plain {
		fmt.Fprintf(stdout, "%s\t%s\t%d\n", res.Token, res.Path, res.PendingTasks)
		return ExitOK
	}
	if !gf.Quiet {
		fmt.Fprintln(stdout, "Project export initiated! Things 3 should open shortly.")
		fmt.Fprintln(stdout, "  Note:", res.Path)
		fmt.Fprintln(stdout, "  Token:", res.Token)
		fmt.Fprintln(stdout, "  Pending tasks:", res.PendingTasks)
	}
	return ExitOK
}

func cmdCallback(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: notelink callback <url>")
		return ExitUsage
	}
	raw := strings.TrimSpace(args[0])
	// Reject malformed addresses before bothering the daemon.
	cb, err := things.ParseCallback(raw)
	if err != nil {
		return fail("callback", err)
	}
	if want := things.NewBuilder(cs.Config().ThingsOptions(), nil).CallbackScheme(); !strings.EqualFold(cb.Scheme, want) {
		return fail("callback", fmt.Errorf("%w: scheme %q, expected %q", things.ErrUnknownCallback, cb.Scheme, want))
	}
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	if err := newClient(cs).Callback(ctx, raw); err != nil {
		return fail("callback", err)
	}
	if !gf.Quiet && !gf.JSON {
		fmt.Fprintln(stdout, "Callback delivered")
	}
	return ExitOK
}

func cmdPending(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: notelink pending")
		return ExitUsage
	}
	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	ops, err := newClient(cs).Pending(ctx)
	if err != nil {
		return fail("pending", err)
	}
	if gf.JSON {
		return emitJSON(gf, "pending", daemon.PendingResponse{Operations: ops})
	}
	if gf.Plain {
		for _, op := range ops {
			fmt.Fprintf(stdout, "%s\t%d\t%s\t%s\n", op.Token, op.PendingTasks, op.Started.Format(time.RFC3339), op.Path)
		}
		return ExitOK
	}
	if len(ops) == 0 {
		fmt.Fprintln(stdout, "No pending exports.")
		return ExitOK
	}
	w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tTASKS\tSTARTED\tTITLE\tPATH")
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", op.Token, op.PendingTasks, op.Started.Local().Format("2006-01-02 15:04"), op.Title, op.Path)
	}
	_ = w.Flush()
	return ExitOK
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// cmdCheck reports whether URLs can be handed to Things on this machine.
func cmdCheck(cs *config.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{"--open": false})
	fs := newFlagSet("check")
	open := fs.Bool("open", false, "Also open Things once")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "Usage: notelink check [--open]")
		return ExitUsage
	}
	cfg := cs.Config()
	d := things.NewCommandDispatcher(cfg.Things.Opener)
	path, err := d.Available()
	if err != nil {
		fmt.Fprintln(stderr, "check:", err)
		return ExitUnavailable
	}
	if *open {
		ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
		defer cancel()
		if err := things.NewBuilder(cfg.ThingsOptions(), d).CheckAvailable(ctx); err != nil {
			fmt.Fprintln(stderr, "check:", err)
			return ExitUnavailable
		}
	}
	if gf.Quiet {
		return ExitOK
	}
	if gf.Plain {
		fmt.Fprintf(stdout, "%s\t%s\t%t\n", d.Name, path, *open)
		return ExitOK
	}
	fmt.Fprintln(stdout, "Opener:", path)
	if *open {
		fmt.Fprintln(stdout, "Things responded to", cfg.Things.Scheme+":///show")
	}
	return ExitOK
}
