package terminal

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgdbg/pgdbg/pkg/alias"
	"github.com/pgdbg/pgdbg/pkg/config"
	"github.com/pgdbg/pgdbg/pkg/inspect"
	"github.com/pgdbg/pgdbg/pkg/logflags"
	"github.com/pgdbg/pgdbg/pkg/pgnodes"
	"github.com/pgdbg/pgdbg/pkg/script"
	"github.com/pgdbg/pgdbg/pkg/tagged"
	"github.com/pgdbg/pgdbg/pkg/walker"
)

// Session is the state shared by the commands of a terminal, or of a
// single command line invocation: the inspected process, the walkers and
// the aliases bound so far.
type Session struct {
	Proc    *inspect.Process
	Dec     *tagged.Decoder
	Aliases *alias.Store
	Expr    *walker.Walker
	Plan    *walker.Walker
	Scripts *script.Env
}

// NewSession returns a session over proc configured by conf. The hook
// scripts listed in the configuration are loaded, script output goes to
// out.
func NewSession(proc *inspect.Process, conf *config.Config, out io.Writer) (*Session, error) {
	if conf == nil {
		conf = &config.Config{}
	}
	dec := tagged.NewDecoder(proc, conf.Tags())
	aliases := alias.NewStore(conf.AliasLen())
	fields := pgnodes.DefaultDisplayFields().Merge(pgnodes.DisplayFields(conf.DisplayFields))
	s := &Session{
		Proc:    proc,
		Dec:     dec,
		Aliases: aliases,
		Expr:    pgnodes.NewExprWalker(dec, aliases, fields),
		Plan:    pgnodes.NewPlanWalker(dec, aliases),
		Scripts: script.New(dec, out),
	}
	for _, path := range conf.Scripts.Expr {
		if _, err := s.LoadScript(path, nil, ScriptExpr); err != nil {
			return nil, err
		}
	}
	for _, path := range conf.Scripts.Plan {
		if _, err := s.LoadScript(path, nil, ScriptPlan); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ScriptTarget selects the walkers a script is loaded into.
type ScriptTarget uint8

const (
	ScriptExpr ScriptTarget = 1 << iota
	ScriptPlan
	ScriptBoth = ScriptExpr | ScriptPlan
)

// LoadScript registers the hooks defined by a starlark file into the
// walkers selected by target.
func (s *Session) LoadScript(path string, src interface{}, target ScriptTarget) ([]string, error) {
	var keys []string
	if target&ScriptExpr != 0 {
		k, err := s.Scripts.Load(path, src, s.Expr.Registry())
		if err != nil {
			return nil, err
		}
		keys = k
	}
	if target&ScriptPlan != 0 {
		k, err := s.Scripts.Load(path, src, s.Plan.Registry())
		if err != nil {
			return nil, err
		}
		keys = k
	}
	return keys, nil
}

var (
	castRootRe  = regexp.MustCompile(`^\(\s*([A-Za-z_][A-Za-z0-9_<>:, ]*?)\s*\*\s*\)\s*(\S+)$`)
	errEmptyArg = errors.New("expected a root: $alias, (Type *)0xADDR or 0xADDR")
)

// ParseRoot returns the value named by expr. Three forms are accepted:
//
//	$a3            a bound alias, optionally followed by .field selectors
//	(Plan *)0x10   an address viewed as a pointer to the named type
//	0x10           an address viewed as Node *
func (s *Session) ParseRoot(expr string) (*inspect.Value, error) {
	return s.parseRoot(expr, tagged.NodeTypeName)
}

func (s *Session) parseRoot(expr, defaultType string) (*inspect.Value, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return nil, errEmptyArg
	case expr[0] == '$':
		return s.parseAlias(expr[1:])
	case expr[0] == '(':
		m := castRootRe.FindStringSubmatch(expr)
		if m == nil {
			return nil, fmt.Errorf("malformed cast %q", expr)
		}
		return s.pointerRoot(m[1], m[2])
	default:
		return s.pointerRoot(defaultType, expr)
	}
}

func (s *Session) parseAlias(expr string) (*inspect.Value, error) {
	path := strings.Split(expr, ".")
	v, ok := s.Aliases.Get(path[0])
	if !ok {
		return nil, fmt.Errorf("unknown alias $%s", path[0])
	}
	for _, name := range path[1:] {
		if name == "" {
			return nil, fmt.Errorf("empty field name in $%s", expr)
		}
		fv, err := v.Field(name)
		if err != nil {
			return nil, err
		}
		v = fv
	}
	return v, nil
}

func (s *Session) pointerRoot(typeName, addrstr string) (*inspect.Value, error) {
	addr, err := strconv.ParseUint(addrstr, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q", addrstr)
	}
	t, err := s.Proc.LookupType(typeName)
	if err != nil {
		return nil, err
	}
	if logflags.Terminal() {
		logflags.TerminalLogger().Debugf("root (%s *)%#x", typeName, addr)
	}
	return s.Proc.PointerValue(addr, t), nil
}

// WalkExpr prints the expression tree rooted at the value named by root.
func (s *Session) WalkExpr(root string, sink walker.Sink) error {
	v, err := s.ParseRoot(root)
	if err != nil {
		return err
	}
	return s.Expr.Walk(v, sink)
}

// WalkPlan prints the plan tree rooted at the value named by root.
func (s *Session) WalkPlan(root string, sink walker.Sink) error {
	v, err := s.ParseRoot(root)
	if err != nil {
		return err
	}
	return s.Plan.Walk(v, sink)
}

// PrintNode prints a single node, cast to its concrete type.
func (s *Session) PrintNode(root string, sink walker.Sink) error {
	v, err := s.ParseRoot(root)
	if err != nil {
		return err
	}
	return pgnodes.FormatNode(s.Dec, s.Aliases, v, sink)
}

// PrintList prints the elements of a List. A bare address is viewed as
// List *.
func (s *Session) PrintList(root string, sink walker.Sink) error {
	v, err := s.parseRoot(root, tagged.ListTypeName)
	if err != nil {
		return err
	}
	return pgnodes.FormatList(s.Dec, s.Aliases, v, sink)
}
