package main

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdScan
	cmdSearch
	cmdPick
	cmdRefresh
	cmdOffline
	cmdOnline
	cmdStop
	cmdStart
	cmdStatus
	cmdHelp
	cmdQuit
)

type command struct {
	kind  commandKind
	arg   string
	index int
}

const helpText = `type or scan a guest code to check it in
  /search <name or phone>  find a guest
  /pick <n>                check in result n of the last search
  /refresh                 reload the guest list from the coordinator
  /offline, /online        force offline mode or release it
  /stop, /start            turn the camera off or on
  /status                  show counts and pending scans
  /quit                    exit`

// parseCommand reads one operator line. Anything not starting with a
// slash is a decoded payload.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdScan, arg: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "search", "s":
		if arg == "" {
			return command{}, fmt.Errorf("usage: /search <name or phone>")
		}
		return command{kind: cmdSearch, arg: arg}, nil
	case "pick", "p":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("usage: /pick <n>, n from the last search")
		}
		return command{kind: cmdPick, index: n}, nil
	case "refresh":
		return command{kind: cmdRefresh}, nil
	case "offline":
		return command{kind: cmdOffline}, nil
	case "online":
		return command{kind: cmdOnline}, nil
	case "stop":
		return command{kind: cmdStop}, nil
	case "start":
		return command{kind: cmdStart}, nil
	case "status":
		return command{kind: cmdStatus}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "q", "exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s, try /help", name)
	}
}
