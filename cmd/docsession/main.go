// docsession is the command-line entry point for the Document Session
// Core: each invocation opens the configured sessions directory, restores
// every session recorded in its index, runs one subcommand against the
// Session Manager, and prints the result as JSON to stdout.
//
// Its flag-per-subcommand dispatch follows the teacher's
// cmd/witnessd/main.go: a top-level switch over os.Args[1], each command
// building its own flag.FlagSet and exiting non-zero with a message on
// os.Stderr on failure.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"docsession/internal/config"
	"docsession/internal/logging"
	"docsession/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logger, err := logging.New(&logging.Config{
		Level:     logLevel,
		Format:    logging.FormatText,
		Output:    "stderr",
		AddSource: cfg.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logger: %v\n", err)
		os.Exit(1)
	}

	mgr, err := session.NewManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting session manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.RestoreSessions(); err != nil {
		fmt.Fprintf(os.Stderr, "error restoring sessions: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Shutdown()

	switch os.Args[1] {
	case "open":
		cmdOpen(mgr)
	case "apply":
		cmdApply(mgr)
	case "dry-run":
		cmdDryRun(mgr)
	case "undo":
		cmdUndo(mgr)
	case "redo":
		cmdRedo(mgr)
	case "jump":
		cmdJump(mgr)
	case "snapshot":
		cmdSnapshot(mgr)
	case "save":
		cmdSave(mgr)
	case "close":
		cmdClose(mgr)
	case "check-sync":
		cmdCheckSync(mgr)
	case "ack":
		cmdAck(mgr)
	case "sync":
		cmdSync(mgr)
	case "history":
		cmdHistory(mgr)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`docsession - document session core CLI

USAGE:
    docsession <command> [options]

COMMANDS:
    open [path]                    Open a session (empty doc if path omitted)
    apply <session-id> <batch.json> Apply a JSON patch batch
    dry-run <session-id> <batch.json> Report the outcome without committing
    undo <session-id> [steps]      Undo the last N batches (default 1)
    redo <session-id> [steps]      Redo the last N undone batches (default 1)
    jump <session-id> <position>   Jump to an absolute WAL position
    snapshot <session-id>          Force a checkpoint at the current cursor
    save <session-id> [dst]        Serialize the DOM to dst or the source path
    close <session-id>             Close a session and remove its durable state
    check-sync <session-id>        Report a pending external change, if any
    ack <session-id>               Acknowledge a pending external change without applying it
    sync <session-id>              Absorb a pending external change
    history <session-id>           Print the session's recorded activity`)
}

func emitJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding output: %v\n", err)
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func cmdOpen(mgr *session.Manager) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	s, err := mgr.Open(path)
	if err != nil {
		fail("error opening session: %v", err)
	}
	emitJSON(map[string]any{"session_id": s.ID, "source_path": s.SourcePath})
}

func requireArgs(fs *flag.FlagSet, n int, usage string) {
	if fs.NArg() < n {
		fail("usage: docsession %s", usage)
	}
}

func cmdApply(mgr *session.Manager) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 2, "apply <session-id> <batch.json>")

	batch, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		fail("error reading patch batch: %v", err)
	}
	pos, err := mgr.ApplyPatch(fs.Arg(0), batch)
	if err != nil {
		fail("error applying patch: %v", err)
	}
	emitJSON(map[string]any{"position": pos})
}

func cmdDryRun(mgr *session.Manager) {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 2, "dry-run <session-id> <batch.json>")

	batch, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		fail("error reading patch batch: %v", err)
	}
	doc, err := mgr.DryRunPatch(fs.Arg(0), batch)
	if err != nil {
		fail("error dry-running patch: %v", err)
	}
	data, err := doc.Save()
	if err != nil {
		fail("error serializing dry-run result: %v", err)
	}
	emitJSON(map[string]any{"would_succeed": true, "bytes": len(data)})
}

func cmdUndo(mgr *session.Manager) {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "undo <session-id> [steps]")

	steps := argInt(fs, 1, 1)
	pos, err := mgr.Undo(fs.Arg(0), steps)
	if err != nil {
		fail("error undoing: %v", err)
	}
	emitJSON(map[string]any{"position": pos})
}

func cmdRedo(mgr *session.Manager) {
	fs := flag.NewFlagSet("redo", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "redo <session-id> [steps]")

	steps := argInt(fs, 1, 1)
	pos, err := mgr.Redo(fs.Arg(0), steps)
	if err != nil {
		fail("error redoing: %v", err)
	}
	emitJSON(map[string]any{"position": pos})
}

func cmdJump(mgr *session.Manager) {
	fs := flag.NewFlagSet("jump", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 2, "jump <session-id> <position>")

	target := argInt(fs, 1, 0)
	pos, err := mgr.JumpTo(fs.Arg(0), target)
	if err != nil {
		fail("error jumping: %v", err)
	}
	emitJSON(map[string]any{"position": pos})
}

func cmdSnapshot(mgr *session.Manager) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	discard := fs.Bool("discard-redo", false, "drop redo history beyond the current cursor")
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "snapshot <session-id> [-discard-redo]")

	if err := mgr.Snapshot(fs.Arg(0), *discard); err != nil {
		fail("error snapshotting: %v", err)
	}
	emitJSON(map[string]any{"ok": true})
}

func cmdSave(mgr *session.Manager) {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "save <session-id> [dst]")

	dst := ""
	if fs.NArg() > 1 {
		dst = fs.Arg(1)
	}
	if err := mgr.Save(fs.Arg(0), dst); err != nil {
		fail("error saving: %v", err)
	}
	emitJSON(map[string]any{"ok": true})
}

func cmdClose(mgr *session.Manager) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "close <session-id>")

	if err := mgr.Close(fs.Arg(0)); err != nil {
		fail("error closing: %v", err)
	}
	emitJSON(map[string]any{"ok": true})
}

func cmdCheckSync(mgr *session.Manager) {
	fs := flag.NewFlagSet("check-sync", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "check-sync <session-id>")

	pending, ok, err := mgr.CheckExternalChange(fs.Arg(0))
	if err != nil {
		fail("error checking for external change: %v", err)
	}
	if !ok {
		emitJSON(map[string]any{"pending": false})
		return
	}
	emitJSON(map[string]any{"pending": true, "summary": pending.Summary})
}

func cmdAck(mgr *session.Manager) {
	fs := flag.NewFlagSet("ack", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "ack <session-id>")

	if err := mgr.AcknowledgeExternalChange(fs.Arg(0)); err != nil {
		fail("error acknowledging external change: %v", err)
	}
	emitJSON(map[string]any{"ok": true})
}

func cmdSync(mgr *session.Manager) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "sync <session-id>")

	result, err := mgr.SyncExternalChange(fs.Arg(0))
	if err != nil {
		fail("error syncing: %v", err)
	}
	emitJSON(result)
}

func cmdHistory(mgr *session.Manager) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	fs.Parse(os.Args[2:])
	requireArgs(fs, 1, "history <session-id>")

	recs, ok, err := mgr.ActivityHistory(fs.Arg(0))
	if err != nil {
		fail("error reading history: %v", err)
	}
	if !ok {
		emitJSON(map[string]any{"enabled": false})
		return
	}
	emitJSON(map[string]any{"enabled": true, "entries": recs})
}

func argInt(fs *flag.FlagSet, idx, def int) int {
	if fs.NArg() <= idx {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(fs.Arg(idx), "%d", &n); err != nil {
		fail("expected an integer argument, got %q", fs.Arg(idx))
	}
	return n
}
