package cfg

import "time"

type Command string

const (
	CommandSync    Command = "sync"
	CommandServe   Command = "serve"
	CommandReindex Command = "reindex"
	CommandStatus  Command = "status"
)

type Cfg struct {
	Command Command

	// Source feed
	User      string
	FeedURL   string
	Timeout   int // seconds
	UserAgent string

	// Storage
	OutputDir   string
	StateFile   string
	IndexDB     string
	LockFile    string
	ProfileFile string

	// HTTP server
	Port         string
	APIAccessKey string

	// Application metadata
	Timezone string
	Location *time.Location
	Debug    bool
	Version  string
}

func (c *Cfg) FetchTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
