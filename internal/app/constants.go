package app

import "time"

const (
	Name           = "scribblego"
	ConfigFilename = "config.json"
	DBFilename     = "records.db"
	LogFilename    = "app.log"
	DataDirName    = "data"

	// WriterQueueSize bounds pending record writes.
	WriterQueueSize = 16

	connectBackoffMin = time.Second
	connectBackoffMax = 15 * time.Second

	// maxBootRestarts stops a restart loop when every boot keeps resetting the store.
	maxBootRestarts = 3
)
