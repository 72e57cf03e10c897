package chat

import "strings"

// ircMessage is one parsed IRC line: optional @tags, optional :prefix, a
// command, middle params and an optional trailing param.
type ircMessage struct {
	Tags     map[string]string
	Prefix   string
	Command  string
	Params   []string
	Trailing string
}

// parseIRC parses a raw IRC line. It tolerates missing parts; an empty line
// yields an empty command.
func parseIRC(line string) ircMessage {
	msg := ircMessage{Tags: map[string]string{}}
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, "@") {
		var rawTags string
		if i := strings.Index(line, " "); i >= 0 {
			rawTags, line = line[1:i], line[i+1:]
		} else {
			rawTags, line = line[1:], ""
		}
		for _, kv := range strings.Split(rawTags, ";") {
			if k, v, found := strings.Cut(kv, "="); found {
				msg.Tags[k] = unescapeTag(v)
			} else if kv != "" {
				msg.Tags[kv] = ""
			}
		}
	}

	if strings.HasPrefix(line, ":") {
		if i := strings.Index(line, " "); i >= 0 {
			msg.Prefix, line = line[1:i], line[i+1:]
		} else {
			msg.Prefix, line = line[1:], ""
		}
	}

	if i := strings.Index(line, " :"); i >= 0 {
		msg.Trailing = line[i+2:]
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) > 0 {
		msg.Command = fields[0]
		msg.Params = fields[1:]
	}
	return msg
}

// unescapeTag reverses the IRCv3 tag value escaping.
func unescapeTag(v string) string {
	if !strings.Contains(v, "\\") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// senderName extracts the login from an IRC prefix (nick!user@host).
func senderName(prefix string) string {
	if i := strings.Index(prefix, "!"); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

// isPrivileged reports whether the message tags identify the broadcaster or a
// moderator.
func isPrivileged(tags map[string]string) bool {
	if tags["mod"] == "1" {
		return true
	}
	for _, badge := range strings.Split(tags["badges"], ",") {
		if strings.HasPrefix(badge, "broadcaster/") || strings.HasPrefix(badge, "moderator/") {
			return true
		}
	}
	return false
}
