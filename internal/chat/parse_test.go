package chat

import "testing"

func TestParseIRCPrivmsg(t *testing.T) {
	line := `@badges=broadcaster/1;display-name=Streamer;mod=0 :streamer!streamer@streamer.tmi.twitch.tv PRIVMSG #streamer :!death+ now`
	msg := parseIRC(line)

	if msg.Command != "PRIVMSG" {
		t.Errorf("command = %q", msg.Command)
	}
	if len(msg.Params) != 1 || msg.Params[0] != "#streamer" {
		t.Errorf("params = %v", msg.Params)
	}
	if msg.Trailing != "!death+ now" {
		t.Errorf("trailing = %q", msg.Trailing)
	}
	if msg.Tags["display-name"] != "Streamer" {
		t.Errorf("tags = %v", msg.Tags)
	}
	if senderName(msg.Prefix) != "streamer" {
		t.Errorf("sender = %q", senderName(msg.Prefix))
	}
}

func TestParseIRCPing(t *testing.T) {
	msg := parseIRC("PING :tmi.twitch.tv")
	if msg.Command != "PING" || msg.Trailing != "tmi.twitch.tv" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestParseIRCTagEscapes(t *testing.T) {
	msg := parseIRC(`@system-msg=10\sgifted\ssubs! :tmi.twitch.tv USERNOTICE #chan`)
	if msg.Tags["system-msg"] != "10 gifted subs!" {
		t.Errorf("system-msg = %q", msg.Tags["system-msg"])
	}
}

func TestIsPrivileged(t *testing.T) {
	cases := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"broadcaster badge", map[string]string{"badges": "broadcaster/1,subscriber/12"}, true},
		{"mod tag", map[string]string{"mod": "1"}, true},
		{"moderator badge", map[string]string{"badges": "moderator/1"}, true},
		{"viewer", map[string]string{"badges": "subscriber/3"}, false},
		{"no tags", map[string]string{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isPrivileged(tc.tags); got != tc.want {
				t.Errorf("isPrivileged(%v) = %v", tc.tags, got)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	name, args, ok := ParseCommand("!saveseries Dark Souls")
	if !ok || name != "saveseries" || len(args) != 2 {
		t.Errorf("got %q %v %v", name, args, ok)
	}

	if _, _, ok := ParseCommand("just chatting"); ok {
		t.Error("non-command parsed as command")
	}
	if _, _, ok := ParseCommand("!"); ok {
		t.Error("bare bang parsed as command")
	}
}

func TestLookupAliases(t *testing.T) {
	long, ok := Lookup("death+")
	if !ok {
		t.Fatal("death+ unknown")
	}
	short, ok := Lookup("d+")
	if !ok {
		t.Fatal("d+ unknown")
	}
	if long.Action != short.Action || long.Kind != short.Kind {
		t.Errorf("alias mismatch: %+v vs %+v", long, short)
	}
	if !long.Privileged {
		t.Error("death+ must be privileged")
	}

	public, ok := Lookup("deaths")
	if !ok || public.Privileged {
		t.Errorf("deaths = %+v, want public", public)
	}

	if _, ok := Lookup("unknowncmd"); ok {
		t.Error("unknown command resolved")
	}
}
