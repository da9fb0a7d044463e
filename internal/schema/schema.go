package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AnnotationSendsTransactions marks commands that broadcast transactions.
// Agents use it to decide which commands need a funded deployer key.
const AnnotationSendsTransactions = "routerdeploy/sends-transactions"

// AnnotationConfirmFlag names the flag a transacting command requires before it signs.
const AnnotationConfirmFlag = "routerdeploy/confirm-flag"

type CommandSchema struct {
	Path              string          `json:"path"`
	Use               string          `json:"use"`
	Short             string          `json:"short"`
	Aliases           []string        `json:"aliases,omitempty"`
	SendsTransactions bool            `json:"sends_transactions,omitempty"`
	ConfirmFlag       string          `json:"confirm_flag,omitempty"`
	NetworkScoped     bool            `json:"network_scoped,omitempty"`
	Flags             []FlagSchema    `json:"flags,omitempty"`
	Subcommands       []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd, err := lookup(root, strings.Fields(commandPath))
	if err != nil {
		return CommandSchema{}, fmt.Errorf("command not found: %s", strings.TrimSpace(commandPath))
	}
	return describe(cmd), nil
}

// Transacting returns the paths of every visible command that sends transactions.
func Transacting(root *cobra.Command) []string {
	var paths []string
	var walk func(s CommandSchema)
	walk = func(s CommandSchema) {
		if s.SendsTransactions {
			paths = append(paths, s.Path)
		}
		for _, sub := range s.Subcommands {
			walk(sub)
		}
	}
	walk(describe(root))
	return paths
}

func lookup(cmd *cobra.Command, names []string) (*cobra.Command, error) {
	for _, name := range names {
		var next *cobra.Command
		for _, c := range cmd.Commands() {
			if c.Name() == name || c.HasAlias(name) {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("unknown command %q", name)
		}
		cmd = next
	}
	return cmd, nil
}

func describe(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:              strings.TrimSpace(cmd.CommandPath()),
		Use:               cmd.Use,
		Short:             cmd.Short,
		Aliases:           cmd.Aliases,
		SendsTransactions: cmd.Annotations[AnnotationSendsTransactions] == "true",
		ConfirmFlag:       cmd.Annotations[AnnotationConfirmFlag],
	}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		flag := FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  isRequired(f),
		}
		if flag.Name == "network" && flag.Required {
			s.NetworkScoped = true
		}
		s.Flags = append(s.Flags, flag)
	})
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, describe(sub))
	}
	return s
}

// isRequired reports flags marked with cobra's MarkFlagRequired.
func isRequired(f *pflag.Flag) bool {
	values, ok := f.Annotations[cobra.BashCompOneRequiredFlag]
	return ok && len(values) > 0 && values[0] == "true"
}
