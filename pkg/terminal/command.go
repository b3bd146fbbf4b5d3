// Package terminal implements functions for responding to user
// input and dispatching to the node walkers.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for pgdbg's terminal.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

const rootHelp = `
A root is one of:

	$a3              a node bound to an alias by an earlier command, $a3.args selects a field
	(Type *)0xADDR   the address of a value of the named type
	0xADDR           the address of a node, viewed as Node *`

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"expr", "e"}, group: walkCmds, cmdFn: exprCommand, helpMsg: `Prints an expression tree.

	expr <root>

Every node is printed on its own line together with the alias it is bound to, its concrete type, its address and a description of its most relevant fields.
` + rootHelp},
		{aliases: []string{"plan", "p"}, group: walkCmds, cmdFn: planCommand, helpMsg: `Prints a plan tree.

	plan <root>

Children are the non NULL lefttree and righttree of each plan node, scans print their range table index.
` + rootHelp},
		{aliases: []string{"node", "n"}, group: dataCmds, cmdFn: nodeCommand, helpMsg: `Prints a node cast to its concrete type.

	node <root>
` + rootHelp},
		{aliases: []string{"list", "l"}, group: dataCmds, cmdFn: listCommand, helpMsg: `Prints the elements of a List.

	list <root>

A bare address is viewed as List *. Pointer elements are bound to aliases.
` + rootHelp},
		{aliases: []string{"aliases"}, group: dataCmds, cmdFn: aliasesCommand, helpMsg: `Prints the aliases bound so far.

	aliases [prefix]`},
		{aliases: []string{"print", "x"}, group: dataCmds, cmdFn: printCommand, helpMsg: `Prints a value without casting it.

	print <root>

Pointers are followed once.
` + rootHelp},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, helpMsg: `Executes a file containing a list of pgdbg commands, or loads a starlark hook script.

	source [-expr|-plan] <path>

Files ending in .star are starlark scripts: their show_, walk_ and cast_ functions are registered as hooks of the expression walker (-expr), of the plan walker (-plan) or, by default, of both.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"transcript"}, cmdFn: transcript, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of pgdbg's command is appended to the specified output file. If '-t' is specified and the output file exists it is truncated. If '-x' is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

	exit`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// An empty command does nothing.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// completions returns a trie of the names and aliases of all commands.
func (c *Commands) completions() *trie.Trie {
	t := trie.New()
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			t.Add(alias, nil)
		}
	}
	return t
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func exprCommand(t *Term, args string) error {
	t.stdout.pw.PageMaybe(nil)
	defer t.stdout.pw.Reset()
	return t.session.WalkExpr(args, t.sink())
}

func planCommand(t *Term, args string) error {
	t.stdout.pw.PageMaybe(nil)
	defer t.stdout.pw.Reset()
	return t.session.WalkPlan(args, t.sink())
}

func nodeCommand(t *Term, args string) error {
	return t.session.PrintNode(args, t.sink())
}

func listCommand(t *Term, args string) error {
	t.stdout.pw.PageMaybe(nil)
	defer t.stdout.pw.Reset()
	return t.session.PrintList(args, t.sink())
}

func aliasesCommand(t *Term, args string) error {
	prefix := strings.TrimPrefix(strings.TrimSpace(args), "$")
	sink := t.sink()
	for _, name := range t.session.Aliases.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		v, _ := t.session.Aliases.Get(name)
		sink.EmitLine(fmt.Sprintf("$%s = (%s) %s", name, v.Type(), v))
	}
	return nil
}

func printCommand(t *Term, args string) error {
	v, err := t.session.ParseRoot(args)
	if err != nil {
		return err
	}
	body := v.String()
	if v.Type().IsPointer() {
		if isnil, err := v.IsNil(); err == nil && !isnil {
			if deref, err := v.Deref(); err == nil {
				body += " " + deref.String()
			}
		}
	}
	t.sink().EmitLine(fmt.Sprintf("(%s) %s", v.Type(), body))
	return nil
}

// splitArgs splits args the way a shell does, without expansions.
func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", args)
	}
	return v[0], nil
}

func (c *Commands) sourceCommand(t *Term, args string) error {
	w, err := splitArgs(args)
	if err != nil {
		return err
	}
	target := ScriptBoth
	if len(w) == 2 {
		switch w[0] {
		case "-expr":
			target = ScriptExpr
		case "-plan":
			target = ScriptPlan
		default:
			return fmt.Errorf("unknown option %q", w[0])
		}
		w = w[1:]
	}
	if len(w) != 1 {
		return fmt.Errorf("wrong number of arguments: source [-expr|-plan] <filename>")
	}

	if filepath.Ext(w[0]) == ".star" {
		keys, err := t.session.LoadScript(w[0], nil, target)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintf(t.stdout, "%s: no hooks defined\n", w[0])
		} else {
			fmt.Fprintf(t.stdout, "%s: %s\n", w[0], strings.Join(keys, ", "))
		}
		return nil
	}

	if target != ScriptBoth {
		return fmt.Errorf("-expr and -plan only apply to starlark scripts")
	}
	return c.executeFile(t, w[0])
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

func transcript(t *Term, args string) error {
	w, err := splitArgs(args)
	if err != nil {
		return err
	}
	truncate := false
	fileOnly := false
	disable := false
	path := ""
	for _, arg := range w {
		switch arg {
		case "-x":
			fileOnly = true
		case "-t":
			truncate = true
		case "-off":
			disable = true
		default:
			if path != "" || strings.HasPrefix(arg, "-") {
				return fmt.Errorf("unrecognized option %q", arg)
			} else {
				path = arg
			}
		}
	}

	if disable {
		if path != "" {
			return errors.New("-off option specified with an output path")
		}
		return t.stdout.CloseTranscript()
	}

	if path == "" {
		return errors.New("no output path specified")
	}

	flags := os.O_APPEND | os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	fh, err := os.OpenFile(path, flags, 0660)
	if err != nil {
		return err
	}

	if err := t.stdout.CloseTranscript(); err != nil {
		return err
	}

	t.stdout.TranscribeTo(fh, fileOnly)
	return nil
}

// ExitRequestError is returned when the user
// exits pgdbg.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	if args != "" {
		return fmt.Errorf("exit takes no arguments")
	}
	return ExitRequestError{}
}
