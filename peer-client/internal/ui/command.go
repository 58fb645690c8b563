package ui

import (
	"errors"
	"strings"
)

// CommandKind selects what a typed line does.
type CommandKind int

const (
	CmdBroadcast CommandKind = iota
	CmdDirect
	CmdPeers
	CmdQuit
	CmdNone
)

// ErrUsage is returned for a recognised command with bad arguments.
var ErrUsage = errors.New("usage: /to <peer-id> <text>")

// Command is one parsed input line.
type Command struct {
	Kind   CommandKind
	Target string
	Text   string
}

// ParseCommand interprets a line typed by the user. Lines that are not a
// command are broadcast as chat.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Command{Kind: CmdNone}, nil
	case line == "/peers":
		return Command{Kind: CmdPeers}, nil
	case line == "/quit":
		return Command{Kind: CmdQuit}, nil
	case line == "/to" || strings.HasPrefix(line, "/to "):
		target, text, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/to")), " ")
		text = strings.TrimSpace(text)
		if !ok || target == "" || text == "" {
			return Command{}, ErrUsage
		}
		return Command{Kind: CmdDirect, Target: target, Text: text}, nil
	default:
		return Command{Kind: CmdBroadcast, Text: line}, nil
	}
}
