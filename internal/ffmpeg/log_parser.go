package ffmpeg

import "strings"

var logLevels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// cutBracket splits "[tag] rest" into tag and rest.
func cutBracket(s string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	tag, rest, ok = strings.Cut(s[1:], "] ")
	return tag, rest, ok
}

// ParseLogLevel splits one line written with -loglevel level+... into its
// level and message. Lines look like "[warning] msg" or, for messages from
// a demuxer or decoder, "[rtsp @ 0x55d1c0] [warning] msg"; the component
// prefix is kept in the message. Unrecognised lines are info.
func ParseLogLevel(line string) (level, msg string) {
	tag, rest, ok := cutBracket(line)
	if !ok {
		return "info", line
	}
	if logLevels[tag] {
		return tag, rest
	}

	if lvl, msg, ok := cutBracket(rest); ok && logLevels[lvl] {
		return lvl, "[" + tag + "] " + msg
	}
	return "info", line
}

// ParseOutputLine is ParseLogLevel for a stderr stream that also carries
// -progress blocks. Progress lines come back with an empty level so they are
// not logged.
func ParseOutputLine(line string) (level, msg string) {
	if IsProgressLine(line) {
		return "", line
	}
	return ParseLogLevel(line)
}
