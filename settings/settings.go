// Package settings manages the .mgost directory that anchors a local
// project root: the project binding in settings.json, the API token
// in .env, and the locations of the upload ledger and log files.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// Dir is the name of the state directory inside a project root.
	Dir = ".mgost"

	// TokenEnvVar is the environment variable holding the API token.
	TokenEnvVar = "ARTICHAAPI_TOKEN"

	settingsFile = "settings.json"
	dotenvFile   = ".env"
	ledgerFile   = "mgost.db"
	logDir       = "logs"
)

// Settings is the per-project state persisted in settings.json.
type Settings struct {
	ProjectID   int64  `json:"project_id,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

// Info is the loaded state directory of one project root.
type Info struct {
	dir      string
	Settings Settings

	token       string
	tokenSource TokenSource
}

// Load reads the state directory under root. A missing directory or
// settings file yields empty settings, not an error.
func Load(root string) (*Info, error) {
	info := &Info{dir: filepath.Join(root, Dir)}

	data, err := afero.ReadFile(fs, filepath.Join(info.dir, settingsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &info.Settings); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return info, nil
}

// LedgerPath is where the upload ledger database lives.
func (i *Info) LedgerPath() string {
	return filepath.Join(i.dir, ledgerFile)
}

// LogPath is the directory rotated log files are written to.
func (i *Info) LogPath() string {
	return filepath.Join(i.dir, logDir)
}

// Save persists the settings and, when the token was typed in by the
// user, the dotenv file. Nothing is written for a root that has no
// state to remember yet.
func (i *Info) Save() error {
	if err := i.saveToken(); err != nil {
		return err
	}
	if (i.Settings == Settings{}) {
		return nil
	}
	if err := fs.MkdirAll(i.dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(i.Settings, "", "    ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(i.dir, settingsFile), data, 0644)
}
