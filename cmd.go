package repseq

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// version is overridden at build time with
// -ldflags "-X github.com/antigenomics/repseq.version=..."
var version = "dev"

type commandHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handlers = map[string]commandHandler{
	"version":   versionCommand{},
	"-version":  versionCommand{},
	"--version": versionCommand{},

	"import":       &importer{},
	"stats":        &statscmd{},
	"filter":       &filtercmd{},
	"merge":        &merger{},
	"dump":         &dump{},
	"diversity":    &diversitycmd{},
	"usage":        &usagecmd{},
	"overlap":      &overlapcmd{},
	"annotate":     &annotatecmd{},
	"trend":        &trendcmd{},
	"pca":          &pcacmd{},
	"plot":         &plotcmd{},
	"export-numpy": &exportNumpy{},
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(runCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func runCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s <command> [options]\n", prog)
		listCommands(stderr)
		return 2
	}
	handler, ok := handlers[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		listCommands(stderr)
		return 2
	}
	return handler.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

func listCommands(w io.Writer) {
	var names []string
	for name := range handlers {
		if name[0] == '-' {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprint(w, "\nAvailable commands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "    %s\n", name)
	}
}

var versionSuffix = regexp.MustCompile(` -*version$`)

type versionCommand struct{}

func (versionCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	prog = versionSuffix.ReplaceAllLiteralString(prog, "")
	fmt.Fprintf(stdout, "%s %s (%s)\n", prog, version, runtime.Version())
	return 0
}
