package chat

import (
	"strings"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// Action is what a recognized chat command does once it reaches the
// dispatcher.
type Action string

// Chat command actions
const (
	ActionIncrement    Action = "increment"
	ActionDecrement    Action = "decrement"
	ActionReset        Action = "reset"
	ActionSaveSeries   Action = "save-series"
	ActionLoadSeries   Action = "load-series"
	ActionListSeries   Action = "list-series"
	ActionDeleteSeries Action = "delete-series"
	ActionQueryCounter Action = "query-counter"
	ActionStats        Action = "stats"
	ActionStreamStats  Action = "stream-stats"
)

// Command describes one recognized chat command.
type Command struct {
	Name       string
	Action     Action
	Kind       models.CounterKind
	Privileged bool
}

var commands = map[string]Command{
	"death+":  {Action: ActionIncrement, Kind: models.KindDeaths, Privileged: true},
	"d+":      {Action: ActionIncrement, Kind: models.KindDeaths, Privileged: true},
	"death-":  {Action: ActionDecrement, Kind: models.KindDeaths, Privileged: true},
	"d-":      {Action: ActionDecrement, Kind: models.KindDeaths, Privileged: true},
	"swear+":  {Action: ActionIncrement, Kind: models.KindSwears, Privileged: true},
	"s+":      {Action: ActionIncrement, Kind: models.KindSwears, Privileged: true},
	"swear-":  {Action: ActionDecrement, Kind: models.KindSwears, Privileged: true},
	"s-":      {Action: ActionDecrement, Kind: models.KindSwears, Privileged: true},
	"scream+": {Action: ActionIncrement, Kind: models.KindScreams, Privileged: true},
	"sc+":     {Action: ActionIncrement, Kind: models.KindScreams, Privileged: true},
	"scream-": {Action: ActionDecrement, Kind: models.KindScreams, Privileged: true},
	"sc-":     {Action: ActionDecrement, Kind: models.KindScreams, Privileged: true},

	"resetcounters": {Action: ActionReset, Privileged: true},
	"saveseries":    {Action: ActionSaveSeries, Privileged: true},
	"loadseries":    {Action: ActionLoadSeries, Privileged: true},
	"listseries":    {Action: ActionListSeries, Privileged: true},
	"deleteseries":  {Action: ActionDeleteSeries, Privileged: true},

	"deaths":      {Action: ActionQueryCounter, Kind: models.KindDeaths},
	"swears":      {Action: ActionQueryCounter, Kind: models.KindSwears},
	"bits":        {Action: ActionQueryCounter, Kind: models.KindBits},
	"stats":       {Action: ActionStats},
	"streamstats": {Action: ActionStreamStats},
}

// Lookup resolves a command name (without the leading '!') to its definition.
func Lookup(name string) (Command, bool) {
	c, ok := commands[strings.ToLower(name)]
	if ok {
		c.Name = strings.ToLower(name)
	}
	return c, ok
}

// ParseCommand splits a chat line into a command name and its arguments.
// Returns false for anything that is not a '!' command.
func ParseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "!") {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
