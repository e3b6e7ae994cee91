// Package schema describes the command tree in a machine-readable form so
// agents can discover commands, positional arguments and flags without
// parsing help text.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Long        string          `json:"long,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Args        []ArgSchema     `json:"args,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Runnable    bool            `json:"runnable"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// ArgSchema is a positional argument parsed from the command's Use line:
// <name> is required, [name] is optional.
type ArgSchema struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Build serializes the command at commandPath (relative to root, empty for
// root itself). Global flags are listed once, on the requested command only.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd, err := resolve(root, strings.Fields(commandPath))
	if err != nil {
		return CommandSchema{}, fmt.Errorf("command not found: %s: %w", strings.TrimSpace(commandPath), err)
	}
	s := serialize(cmd)
	s.GlobalFlags = flagsOf(cmd.InheritedFlags())
	return s, nil
}

func resolve(cmd *cobra.Command, parts []string) (*cobra.Command, error) {
	for _, p := range parts {
		next := subcommand(cmd, p)
		if next == nil {
			return nil, fmt.Errorf("%q has no subcommand %q", cmd.Name(), p)
		}
		cmd = next
	}
	return cmd, nil
}

func subcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:     strings.TrimSpace(cmd.CommandPath()),
		Use:      cmd.Use,
		Short:    cmd.Short,
		Long:     cmd.Long,
		Aliases:  cmd.Aliases,
		Args:     parseArgs(cmd.Use),
		Flags:    flagsOf(cmd.NonInheritedFlags()),
		Runnable: cmd.Runnable(),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func parseArgs(use string) []ArgSchema {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}
	var out []ArgSchema
	for _, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">"):
			out = append(out, ArgSchema{Name: strings.Trim(f, "<>"), Required: true})
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			out = append(out, ArgSchema{Name: strings.Trim(f, "[]")})
		case strings.HasPrefix(f, "["):
			// multi-word optional, e.g. "[command path]"
			out = append(out, ArgSchema{Name: strings.TrimPrefix(f, "[")})
		case strings.HasSuffix(f, "]") && len(out) > 0:
			out[len(out)-1].Name += " " + strings.TrimSuffix(f, "]")
		}
	}
	return out
}

func flagsOf(set *pflag.FlagSet) []FlagSchema {
	items := []FlagSchema{}
	set.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  required,
		})
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
