package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KainCH/omniasylum-sub001/internal/chat"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// counterEmoji decorates chat replies per counter kind.
var counterEmoji = map[models.CounterKind]string{
	models.KindDeaths:  "💀",
	models.KindSwears:  "🤬",
	models.KindScreams: "😱",
	models.KindBits:    "💎",
}

// handleChatCommand executes a recognized chat command. The session already
// filtered unauthorized privileged commands.
func (d *Dispatcher) handleChatCommand(ctx context.Context, tenant models.Tenant, ev models.UpstreamEvent) {
	cmd, ok := chat.Lookup(ev.Payload.Command)
	if !ok {
		return
	}
	tenantID := tenant.TenantID

	switch cmd.Action {
	case chat.ActionIncrement:
		c, err := d.Increment(ctx, tenantID, cmd.Kind, "chat")
		if err == nil {
			d.replyCount(ctx, tenantID, cmd.Kind, c.Value(cmd.Kind))
		}

	case chat.ActionDecrement:
		c, err := d.Decrement(ctx, tenantID, cmd.Kind, "chat")
		if err == nil {
			d.replyCount(ctx, tenantID, cmd.Kind, c.Value(cmd.Kind))
		}

	case chat.ActionReset:
		if _, err := d.Reset(ctx, tenantID, "chat"); err == nil {
			d.chatEcho(ctx, tenantID, "Counters reset. Fresh start!")
		}

	case chat.ActionSaveSeries:
		name := strings.Join(ev.Payload.Args, " ")
		snap, err := d.SaveSeries(ctx, tenantID, name, "")
		if err != nil {
			d.chatEcho(ctx, tenantID, "Usage: !saveseries <name>")
			return
		}
		d.chatEcho(ctx, tenantID, fmt.Sprintf("Series saved: %s (id %s)", snap.SeriesName, snap.SeriesID))

	case chat.ActionLoadSeries:
		if len(ev.Payload.Args) == 0 {
			d.chatEcho(ctx, tenantID, "Usage: !loadseries <id>")
			return
		}
		c, err := d.LoadSeries(ctx, tenantID, ev.Payload.Args[0])
		if err != nil {
			d.chatEcho(ctx, tenantID, "Series not found: "+ev.Payload.Args[0])
			return
		}
		d.chatEcho(ctx, tenantID, fmt.Sprintf("Series loaded: 💀 %d | 🤬 %d | 💎 %d", c.Deaths, c.Swears, c.Bits))

	case chat.ActionListSeries:
		list, err := d.engine.ListSeries(ctx, tenantID)
		if err != nil || len(list) == 0 {
			d.chatEcho(ctx, tenantID, "No saved series.")
			return
		}
		var names []string
		for i, s := range list {
			if i == 5 {
				break
			}
			names = append(names, fmt.Sprintf("%s (%s)", s.SeriesName, s.SeriesID))
		}
		d.chatEcho(ctx, tenantID, "Saved series: "+strings.Join(names, ", "))

	case chat.ActionDeleteSeries:
		if len(ev.Payload.Args) == 0 {
			d.chatEcho(ctx, tenantID, "Usage: !deleteseries <id>")
			return
		}
		if err := d.engine.DeleteSeries(ctx, tenantID, ev.Payload.Args[0]); err != nil {
			d.chatEcho(ctx, tenantID, "Series not found: "+ev.Payload.Args[0])
			return
		}
		d.chatEcho(ctx, tenantID, "Series deleted: "+ev.Payload.Args[0])

	case chat.ActionQueryCounter:
		c, err := d.engine.Get(ctx, tenantID)
		if err == nil {
			d.chatEcho(ctx, tenantID, fmt.Sprintf("%s Current %s: %d", counterEmoji[cmd.Kind], cmd.Kind, c.Value(cmd.Kind)))
		}

	case chat.ActionStats:
		c, err := d.engine.Get(ctx, tenantID)
		if err == nil {
			d.chatEcho(ctx, tenantID, fmt.Sprintf("💀 %d | 🤬 %d | 😱 %d | 💎 %d", c.Deaths, c.Swears, c.Screams, c.Bits))
		}

	case chat.ActionStreamStats:
		c, err := d.engine.Get(ctx, tenantID)
		if err != nil {
			return
		}
		if c.StreamStarted == nil {
			d.chatEcho(ctx, tenantID, "Stream is offline.")
			return
		}
		uptime := time.Since(*c.StreamStarted).Round(time.Minute)
		d.chatEcho(ctx, tenantID, fmt.Sprintf("Live for %s — 💀 %d | 🤬 %d | 😱 %d | 💎 %d",
			uptime, c.Deaths, c.Swears, c.Screams, c.Bits))
	}
}

func (d *Dispatcher) replyCount(ctx context.Context, tenantID string, kind models.CounterKind, value int64) {
	d.chatEcho(ctx, tenantID, fmt.Sprintf("%s Current %s: %d", counterEmoji[kind], kind, value))
}
