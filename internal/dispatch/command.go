package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command is the typed set of user commands the dispatcher understands.
type Command int

const (
	CmdStart Command = iota
	CmdHelp
	CmdAddAmount
	CmdEditAmount
	CmdRemove
	CmdList
	CmdSetTotal
	CmdCalculate
	CmdReset
	CmdStop
	CmdDelete
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "/start"
	case CmdHelp:
		return "/help"
	case CmdAddAmount:
		return "/addamount"
	case CmdEditAmount:
		return "/editamount"
	case CmdRemove:
		return "/remove"
	case CmdList:
		return "/list"
	case CmdSetTotal:
		return "/settotal"
	case CmdCalculate:
		return "/calculate"
	case CmdReset:
		return "/reset"
	case CmdStop:
		return "/stop"
	case CmdDelete:
		return "/delete"
	}
	return "/?"
}

// State is the dispatcher's per-chat view of the session lifecycle.
type State int

const (
	StateNone State = iota // chat has no session
	StateCollecting
	StateFinalized
)

// transitions is the explicit state × command table. A command missing from
// a state's row is rejected before any handler runs.
var transitions = map[State]map[Command]bool{
	StateNone: {
		CmdStart:  true,
		CmdHelp:   true,
		CmdStop:   true,
		CmdDelete: true,
	},
	StateCollecting: {
		CmdStart:      true,
		CmdHelp:       true,
		CmdAddAmount:  true,
		CmdEditAmount: true,
		CmdRemove:     true,
		CmdList:       true,
		CmdSetTotal:   true,
		CmdCalculate:  true,
		CmdReset:      true,
		CmdStop:       true,
		CmdDelete:     true,
	},
	StateFinalized: {
		CmdStart:  true,
		CmdHelp:   true,
		CmdList:   true,
		CmdReset:  true,
		CmdStop:   true,
		CmdDelete: true,
	},
}

// UsageError reports malformed command arguments. The message echoes the
// expected syntax back to the user.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

// parseNameAmount splits the arguments of /addamount and /editamount into a
// name and a positive amount. Names containing spaces must be quoted;
// otherwise the name is the single token before the amount.
func parseNameAmount(args []string, usage string) (string, float64, error) {
	name, rest, err := parseName(args)
	if err != nil || len(rest) != 1 {
		return "", 0, &UsageError{Usage: usage}
	}
	amount, err := parseAmount(rest[0], usage)
	if err != nil {
		return "", 0, err
	}
	return name, amount, nil
}

// parseName consumes a name from the front of args, honoring double quotes
// around multi-word names, and returns the remaining tokens.
func parseName(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing name")
	}
	first := args[0]
	if !strings.HasPrefix(first, `"`) {
		return first, args[1:], nil
	}
	for i, tok := range args {
		if strings.HasSuffix(tok, `"`) && (i > 0 || len(tok) > 1) {
			name := strings.Trim(strings.Join(args[:i+1], " "), `"`)
			if strings.TrimSpace(name) == "" {
				return "", nil, fmt.Errorf("empty quoted name")
			}
			return name, args[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("unterminated quote")
}

// parseAmount parses a decimal token with a '.' separator. Tokens that are
// not numbers at all are a usage problem; out-of-range values are left for
// the session layer to reject as validation errors.
func parseAmount(tok, usage string) (float64, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &UsageError{Usage: usage}
	}
	return v, nil
}
