// storyc compiles a Twine HTML export into a scene graph cache.
// Usage: storyc [-strict] [-start id] <export.html> <out.json|out.yaml>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"novel/internal/game"
	"novel/internal/logger"
	"novel/internal/markup"
)

func main() {
	code := run(os.Args[1:], os.Stderr)
	if code != 0 {
		os.Exit(code)
	}
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("storyc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	strict := fs.Bool("strict", false, "fail on duplicate passage names")
	start := fs.String("start", "", "require this scene to exist (defaults to the export's start passage)")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintf(stderr, "usage: storyc [-strict] [-start id] <export.html> <out.json|out.yaml>\n")
		return 2
	}
	in, out := fs.Arg(0), fs.Arg(1)

	lg, err := logger.New(logger.Config{Level: *logLevel, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = lg.Sync() }()

	if _, err := game.FormatForPath(out); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	tw, err := markup.LoadTwineHTML(in)
	if err != nil {
		fmt.Fprintf(stderr, "read %s: %v\n", in, err)
		return 1
	}
	g, report, err := markup.Compile(tw.Passages, markup.Options{Strict: *strict})
	if err != nil {
		var dup *markup.DuplicatePassageError
		if errors.As(err, &dup) {
			fmt.Fprintf(stderr, "%s: %v\n", in, dup)
			return 1
		}
		fmt.Fprintf(stderr, "compile %s: %v\n", in, err)
		return 1
	}
	for _, name := range report.Duplicates {
		lg.Warn("Duplicate passage name, later passage kept", zap.String("passage", name))
	}
	for _, ref := range g.DanglingTargets() {
		lg.Warn("Scene refers to a missing scene", zap.String("from", ref.From), zap.String("target", ref.Target))
	}

	startID := *start
	if startID == "" {
		startID = tw.StartPassage
	}
	if startID != "" {
		if _, ok := g.Scene(startID); !ok {
			fmt.Fprintf(stderr, "start scene %q is not a passage in %s\n", startID, in)
			return 1
		}
	}

	if err := game.SaveGraph(out, g); err != nil {
		fmt.Fprintf(stderr, "write %s: %v\n", out, err)
		return 1
	}
	lg.Info("Story compiled", zap.String("out", out), zap.Int("scenes", report.Scenes))
	return 0
}
