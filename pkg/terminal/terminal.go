package terminal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"

	"github.com/pgdbg/pgdbg/pkg/config"
	"github.com/pgdbg/pgdbg/pkg/logflags"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

const (
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack     = 30
	ansiGreen     = 32
	ansiWhite     = 37
	ansiBrBlack   = 90
	ansiBrWhite   = 97
	ansiNoColor   = 0
	defaultPrompt = "(pgdbg) "
)

// Term represents the terminal running pgdbg.
type Term struct {
	session     *Session
	conf        *config.Config
	prompt      string
	line        *liner.State
	cmds        *Commands
	completions *trie.Trie
	dumb        bool
	stdout      *transcriptWriter
	InitFile    string
}

// New returns a new Term.
func New(session *Session, conf *config.Config) *Term {
	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	var w io.Writer
	if dumb {
		w = os.Stdout
	} else {
		w = colorable.NewColorableStdout()
	}
	t := newTerm(session, conf, w)
	t.dumb = dumb
	t.line = liner.NewLiner()
	return t
}

func newTerm(session *Session, conf *config.Config, w io.Writer) *Term {
	cmds := DebugCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	if c := conf.AliasColor(); c != ansiNoColor && (c > ansiWhite && c < ansiBrBlack || c < ansiBlack || c > ansiBrWhite) {
		c = ansiGreen
		conf.Color = &c
	}

	return &Term{
		session:     session,
		conf:        conf,
		prompt:      defaultPrompt,
		cmds:        cmds,
		completions: cmds.completions(),
		stdout:      &transcriptWriter{pw: &pagingWriter{w: w}},
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
}

// sink returns the sink command output is written to.
func (t *Term) sink() walker.Sink {
	color := t.conf.AliasColor()
	if t.dumb {
		color = ansiNoColor
	} else if f, ok := t.stdout.pw.w.(*os.File); ok {
		color = SinkColor(f, color)
	}
	return &lineSink{w: t.stdout, color: color}
}

// complete returns the completions of line: command names for the first
// word, bound aliases for arguments starting with '$'.
func (t *Term) complete(line string) []string {
	i := strings.LastIndex(line, " ")
	if i < 0 {
		c := t.completions.PrefixSearch(strings.ToLower(line))
		sort.Strings(c)
		return c
	}
	head, word := line[:i+1], line[i+1:]
	if !strings.HasPrefix(word, "$") {
		return nil
	}
	var c []string
	for _, name := range t.session.Aliases.Names() {
		if strings.HasPrefix(name, word[1:]) {
			c = append(c, head+"$"+name)
		}
	}
	return c
}

// Run begins running pgdbg in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(t.complete)

	fullHistoryFile, err := config.HistoryFilePath()
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.call(cmdstr); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// call executes one command line, echoing it to the transcript.
func (t *Term) call(cmdstr string) error {
	t.stdout.Echo(t.prompt + cmdstr + "\n")
	err := t.cmds.Call(cmdstr, t)
	t.stdout.Flush()
	if err != nil && logflags.Terminal() {
		logflags.TerminalLogger().Debugf("%q: %v", cmdstr, err)
	}
	return err
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.HistoryFilePath()
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return 1, err
	}
	return 0, nil
}
