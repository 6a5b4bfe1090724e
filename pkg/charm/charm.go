// Package charm is a minimalist CLI framework inspired by cobra and urfave/cli.
package charm

import (
	"errors"
	"flag"
)

var (
	NeedHelp = errors.New("help")
	ErrNoRun = errors.New("no run method")
)

type Constructor func(Command, *flag.FlagSet) (Command, error)

type Command interface {
	Run([]string) error
}

type Spec struct {
	Name  string
	Usage string
	Short string
	Long  string
	New   Constructor
	// Hidden hides this command from help.
	Hidden bool
	// HiddenFlags (comma-separated) marks these flags as hidden.
	HiddenFlags string
	children    []*Spec
	parent      *Spec
}

func (s *Spec) Add(child *Spec) {
	s.children = append(s.children, child)
	child.parent = s
}

func (s *Spec) lookupSub(name string) *Spec {
	for _, child := range s.children {
		if name == child.Name {
			return child
		}
	}
	return nil
}

// ExecRoot parses args against s and its sub-commands and runs the
// command they select. A command returning NeedHelp, or a -h flag,
// prints help for that command to stderr.
func (s *Spec) ExecRoot(args []string) error {
	p, rest, err := parse(s, args)
	if err == nil {
		err = p.run(rest)
	}
	if err == NeedHelp || errors.Is(err, flag.ErrHelp) {
		if p, err = parseHelp(s, args); err != nil {
			return err
		}
		displayHelp(p)
		return nil
	}
	return err
}
