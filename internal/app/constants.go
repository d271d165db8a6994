package app

const (
	Name           = "mavrouter"
	SourceURL      = "https://git.skobk.in/skobkin/mavrouter"
	ConfigFilename = "config.yaml"
	DBFilename     = "mavrouter.db"
	LogFilename    = "mavrouter.log"
)
