package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths stores resolved runtime file locations for host config, logs and the record store.
type Paths struct {
	RootDir    string
	ConfigFile string
	LogFile    string
	DataDir    string
	DBFile     string
}

func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}

	return PathsIn(filepath.Join(cfgRoot, Name))
}

// PathsIn lays the runtime files out under root and creates the directories.
func PathsIn(root string) (Paths, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}
	data := filepath.Join(root, DataDirName)
	if err := os.MkdirAll(data, 0o700); err != nil {
		return Paths{}, fmt.Errorf("create data dir: %w", err)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		LogFile:    filepath.Join(root, LogFilename),
		DataDir:    data,
		DBFile:     filepath.Join(data, DBFilename),
	}, nil
}
