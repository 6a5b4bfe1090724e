package charm

import (
	"fmt"
	"strings"
)

type path []*instance

// parse creates an instance for each command named in args, parsing the
// flags that precede each sub-command name. It returns the arguments
// left for the last command.
func parse(spec *Spec, args []string) (path, []string, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, nil, err
		}
		p = append(p, inst)
		if err := inst.flags.Parse(args); err != nil {
			return p, nil, err
		}
		args = inst.flags.Args()
		if len(args) == 0 {
			return p, nil, nil
		}
		child := spec.lookupSub(args[0])
		if child == nil {
			return p, args, nil
		}
		parent, spec, args = inst.command, child, args[1:]
	}
}

// parseHelp is like parse but ignores flags so that help can be shown
// for a command line that does not parse.
func parseHelp(spec *Spec, args []string) (path, error) {
	var p path
	var parent Command
	for {
		inst, err := newInstance(parent, spec)
		if err != nil {
			return nil, err
		}
		p = append(p, inst)
		for len(args) > 0 && strings.HasPrefix(args[0], "-") {
			args = args[1:]
		}
		if len(args) == 0 {
			return p, nil
		}
		child := spec.lookupSub(args[0])
		if child == nil {
			return p, nil
		}
		parent, spec, args = inst.command, child, args[1:]
	}
}

func (p path) run(args []string) error {
	err := p.last().command.Run(args)
	if err == ErrNoRun {
		if len(args) == 0 {
			err = fmt.Errorf("%q: requires a sub-command: %s", p.pathname(), p.subCommands())
		} else {
			err = fmt.Errorf("%q: no such sub-command %q: options are: %s", p.pathname(), args[0], p.subCommands())
		}
	}
	return err
}

func (p path) last() *instance {
	return p[len(p)-1]
}

func (p path) pathname() string {
	names := make([]string, 0, len(p))
	for _, inst := range p {
		names = append(names, inst.spec.Name)
	}
	return strings.Join(names, " ")
}

func (p path) subCommands() string {
	var names []string
	for _, spec := range p.last().spec.children {
		if !spec.Hidden {
			names = append(names, spec.Name)
		}
	}
	return strings.Join(names, " ")
}
