package charm

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// instance is a command that has been created but not run.
type instance struct {
	spec    *Spec
	command Command
	flags   *flag.FlagSet
}

func newInstance(parent Command, spec *Spec) (*instance, error) {
	if spec.New == nil {
		return nil, fmt.Errorf("command '%s': New function is nil", spec.Name)
	}
	flags := flag.NewFlagSet(spec.Name, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	cmd, err := spec.New(parent, flags)
	if err != nil {
		return nil, err
	}
	return &instance{spec, cmd, flags}, nil
}

// options returns the help lines for the flags of i.
func (i *instance) options() []string {
	hidden := make(map[string]bool)
	for _, name := range strings.Split(i.spec.HiddenFlags, ",") {
		hidden[strings.TrimSpace(name)] = true
	}
	var body []string
	i.flags.VisitAll(func(f *flag.Flag) {
		if hidden[f.Name] {
			return
		}
		line := "-" + f.Name + " " + f.Usage
		if f.DefValue != "" {
			line = fmt.Sprintf("%s (default %q)", line, f.DefValue)
		}
		body = append(body, line)
	})
	return body
}
