package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

type slashKind int

const (
	slashFind slashKind = iota + 1
	slashOpen
	slashRefresh
	slashQuit
)

type slashCommand struct {
	Kind slashKind
	Arg  string
}

// parseSlash reads a composer line starting with '/'. The second result
// is false for ordinary message text.
func parseSlash(line string) (slashCommand, bool, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return slashCommand{}, false, nil
	}
	fields, err := shlex.Split(line[1:])
	if err != nil {
		return slashCommand{}, true, err
	}
	if len(fields) == 0 {
		return slashCommand{}, true, errors.New("empty command")
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "find", "f":
		return slashCommand{Kind: slashFind, Arg: strings.Join(args, " ")}, true, nil
	case "open", "o":
		if len(args) != 1 {
			return slashCommand{}, true, errors.New("usage: /open <peer-id>")
		}
		return slashCommand{Kind: slashOpen, Arg: args[0]}, true, nil
	case "refresh", "r":
		return slashCommand{Kind: slashRefresh}, true, nil
	case "quit", "q":
		return slashCommand{Kind: slashQuit}, true, nil
	default:
		return slashCommand{}, true, fmt.Errorf("unknown command /%s", name)
	}
}

// unescapeSlash turns a leading "//" into a literal "/" message.
func unescapeSlash(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "//") {
		return strings.Replace(line, "//", "/", 1)
	}
	return line
}
