package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "lightspeed-chat-client",
	Level: hclog.LevelFromString("INFO"),
})

// Logger returns l, or AppLogger if l is nil.
func Logger(l hclog.Logger) hclog.Logger {
	if l == nil {
		return AppLogger
	}
	return l
}
