package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgdbg/pgdbg/pkg/config"
	"github.com/pgdbg/pgdbg/pkg/core"
	"github.com/pgdbg/pgdbg/pkg/dwarfcat"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
	"github.com/pgdbg/pgdbg/pkg/memimage"
	"github.com/pgdbg/pgdbg/pkg/terminal"
	"github.com/pgdbg/pgdbg/pkg/version"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath replaces the default configuration file.
	configPath string
	// corePath is the core file of the crashed backend.
	corePath string
	// exePath is the postgres executable that produced the core.
	exePath string
	// debugInfoDirs overrides the debug-info-directories option.
	debugInfoDirs []string
	// initFile is the path to initialization file.
	initFile string
	// replDemo starts the terminal on the demo image.
	replDemo bool
	// verbose prints build info with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const pgdbgCommandLongDesc = `pgdbg prints the node trees of PostgreSQL backends.

pgdbg reads a core file of a postgres backend together with the executable
that produced it and prints expression trees, plan trees, single nodes and
Lists found at the given addresses. Every printed node is bound to an alias
that can be used as the root of the next command.

Roots are written as:

	$a3              a node bound to an alias by an earlier command
	(Type *)0xADDR   the address of a value of the named type
	0xADDR           the address of a node, viewed as Node *

For example:

` + "`pgdbg --core core.4242 --exe /usr/lib/postgresql/16/bin/postgres plan '(Plan *)0x55d0c2a4e8b8'`"

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	if docCall {
		conf = &config.Config{}
	} else {
		conf = config.LoadConfig()
	}

	// Main pgdbg root command.
	rootCommand = &cobra.Command{
		Use:   "pgdbg",
		Short: "pgdbg prints the node trees of PostgreSQL backends.",
		Long:  pgdbgCommandLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			if configPath != "" {
				c, err := config.LoadConfigFrom(configPath)
				if err != nil {
					return err
				}
				conf = c
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
		SilenceUsage: true,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'pgdbg help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'pgdbg help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, replaces $HOME/.pgdbg/config.yml.")
	rootCommand.PersistentFlags().StringVar(&corePath, "core", "", "Core file of the postgres backend.")
	rootCommand.PersistentFlags().StringVar(&exePath, "exe", "", "Postgres executable that produced the core file.")
	rootCommand.PersistentFlags().StringSliceVar(&debugInfoDirs, "debug-info-dir", nil, "Directories searched for separate debug info, by build id (overrides the configuration).")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal.")

	// 'expr' subcommand.
	exprCommand := &cobra.Command{
		Use:   "expr <root>",
		Short: "Prints an expression tree.",
		Long: `Prints the expression tree rooted at <root>.

Every node is printed on its own line together with its alias, its concrete
type, its address and a description of its most relevant fields. Lists are
expanded into their elements and nodes with an args list into their
arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: walkCmd((*terminal.Session).WalkExpr),
	}
	rootCommand.AddCommand(exprCommand)

	// 'plan' subcommand.
	planCommand := &cobra.Command{
		Use:   "plan <root>",
		Short: "Prints a plan tree.",
		Long: `Prints the plan tree rooted at <root>.

The children of a plan node are its left and right subtrees, scans print
their range table index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: walkCmd((*terminal.Session).WalkPlan),
	}
	rootCommand.AddCommand(planCommand)

	// 'node' subcommand.
	nodeCommand := &cobra.Command{
		Use:   "node <root>",
		Short: "Prints a node cast to its concrete type.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  walkCmd((*terminal.Session).PrintNode),
	}
	rootCommand.AddCommand(nodeCommand)

	// 'list' subcommand.
	listCommand := &cobra.Command{
		Use:   "list <root>",
		Short: "Prints the elements of a List.",
		Long: `Prints the elements of the List at <root>.

A bare address is viewed as List *. Pointer elements are cast to their node
type, integer, OID and XID elements are printed as numbers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: walkCmd((*terminal.Session).PrintList),
	}
	rootCommand.AddCommand(listCommand)

	// 'repl' subcommand.
	replCommand := &cobra.Command{
		Use:   "repl",
		Short: "Starts an interactive terminal.",
		Long: `Starts an interactive terminal over the core file.

Aliases bound by a command can be used as roots by the following ones. Type
'help' in the terminal for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: replCmd,
	}
	replCommand.Flags().BoolVar(&replDemo, "demo", false, "Use the demo image instead of a core file.")
	rootCommand.AddCommand(replCommand)

	// 'demo' subcommand.
	demoCommand := &cobra.Command{
		Use:   "demo [expr|plan|list]",
		Short: "Prints the trees of a synthetic backend.",
		Long: `Prints the trees of a synthetic backend built in memory.

The synthetic backend holds the WHERE clause and the plan of

	SELECT * FROM t1 JOIN t2 USING (id) WHERE t1.a = 1 AND length(t2.b) > 3

together with a List of expressions and a List of OIDs. Without arguments
every tree is printed.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"expr", "plan", "list"},
		RunE:      demoCmd,
	}
	rootCommand.AddCommand(demoCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgdbg\n%s\n", version.PgdbgVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	walker		Log every visited node and the hooks it resolved to
	dispatch	Log hook resolution
	tagged		Log tag decoding and List iteration
	core		Log the memory regions of the core file
	dwarf		Log type conversion and debug info lookup
	script		Log starlark hook registration
	terminal	Log terminal commands and roots

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// openSession opens the core and executable named on the command line.
func openSession(out io.Writer) (*terminal.Session, func(), error) {
	if corePath == "" || exePath == "" {
		return nil, nil, errors.New("both --core and --exe must be specified")
	}
	c, err := core.Open(corePath, exePath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open core file %s: %v", corePath, err)
	}
	dirs := conf.DebugInfoDirectories
	if len(debugInfoDirs) > 0 {
		dirs = debugInfoDirs
	}
	cat, err := dwarfcat.Open(exePath, dirs)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("could not load debug info of %s: %v", exePath, err)
	}
	if logflags.Core() {
		logflags.CoreLogger().Debugf("core of pid %d: %q", c.Pid, c.Command)
	}

	proc := inspect.NewProcess(c, cat, c.PtrSize)
	proc.Order = c.Order
	sess, err := terminal.NewSession(proc, conf, out)
	if err != nil {
		cat.Close()
		c.Close()
		return nil, nil, err
	}
	return sess, func() {
		cat.Close()
		c.Close()
	}, nil
}

// sinkFor returns the sink for the output of cmd.
func sinkFor(cmd *cobra.Command) walker.Sink {
	out := cmd.OutOrStdout()
	color := 0
	if f, ok := out.(*os.File); ok {
		color = terminal.SinkColor(f, conf.AliasColor())
	}
	return terminal.NewLineSink(out, color)
}

// walkCmd returns the RunE function of a command printing the tree at the
// root given as arguments. The arguments are joined so that casts do not
// need quoting.
func walkCmd(fn func(*terminal.Session, string, walker.Sink) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sess, closeFn, err := openSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(sess, strings.Join(args, " "), sinkFor(cmd))
	}
}

func replCmd(cmd *cobra.Command, args []string) error {
	var sess *terminal.Session
	if replDemo {
		d := memimage.NewDemo()
		s, err := terminal.NewSession(d.Proc, conf, os.Stdout)
		if err != nil {
			return err
		}
		sess = s
		printDemoRoots(cmd.OutOrStdout(), d)
	} else {
		s, closeFn, err := openSession(os.Stdout)
		if err != nil {
			return err
		}
		defer closeFn()
		sess = s
	}

	term := terminal.New(sess, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("terminal exited with status %d", status)
	}
	return nil
}

func printDemoRoots(out io.Writer, d *memimage.Demo) {
	fmt.Fprintf(out, "WHERE clause:\t%#x\n", d.Qual.Addr)
	fmt.Fprintf(out, "plan:\t\t(Plan *)%#x\n", d.Plan.Addr)
	fmt.Fprintf(out, "expressions:\t(List *)%#x\n", d.Args.Addr)
	fmt.Fprintf(out, "OIDs:\t\t(List *)%#x\n", d.Oids.Addr)
}

func demoCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	d := memimage.NewDemo()
	sess, err := terminal.NewSession(d.Proc, conf, out)
	if err != nil {
		return err
	}
	sink := sinkFor(cmd)

	which := ""
	if len(args) > 0 {
		which = args[0]
	}
	type section struct {
		name, title string
		run         func() error
	}
	sections := []section{
		{"expr", "WHERE clause", func() error { return sess.WalkExpr(fmt.Sprintf("%#x", d.Qual.Addr), sink) }},
		{"plan", "plan", func() error { return sess.WalkPlan(fmt.Sprintf("(Plan *)%#x", d.Plan.Addr), sink) }},
		{"list", "expressions", func() error { return sess.PrintList(fmt.Sprintf("%#x", d.Args.Addr), sink) }},
		{"list", "OIDs", func() error { return sess.PrintList(fmt.Sprintf("%#x", d.Oids.Addr), sink) }},
	}
	found := false
	for _, s := range sections {
		if which != "" && s.name != which {
			continue
		}
		if found {
			fmt.Fprintln(out)
		}
		found = true
		fmt.Fprintf(out, "%s:\n", s.title)
		if err := s.run(); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("unknown demo %q, expected expr, plan or list", which)
	}
	return nil
}
