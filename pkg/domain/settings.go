package domain

import (
	"path/filepath"
	"time"
)

// NeverUpdated is the LastUpdate sentinel of a project that has not been synchronized yet.
const NeverUpdated = "never"

// Settings holds the per-project synchronization configuration.
// The core reads and writes it, but persistence belongs to a ports.SettingsStore.
type Settings struct {
	ProjectID          string `json:"project_id" yaml:"project_id" mapstructure:"project_id"`
	DataDir            string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	LastUpdate         string `json:"last_update" yaml:"last_update" mapstructure:"last_update"`
	ContinuousUpdate   bool   `json:"continuous_update" yaml:"continuous_update" mapstructure:"continuous_update"`
	ContinuousAnalysis bool   `json:"continuous_analysis" yaml:"continuous_analysis" mapstructure:"continuous_analysis"`
}

// NewSettings returns the defaults for a project seen for the first time: the data
// directory lives under baseDir, nothing has been synchronized, changes are pushed
// continuously and analysis runs on demand only.
func NewSettings(projectID, baseDir string) *Settings {
	return &Settings{
		ProjectID:        projectID,
		DataDir:          filepath.Join(baseDir, projectID),
		LastUpdate:       NeverUpdated,
		ContinuousUpdate: true,
	}
}

// NeverSynced reports whether the next flush must start with a full resynchronization.
func (s *Settings) NeverSynced() bool {
	return s.LastUpdate == "" || s.LastUpdate == NeverUpdated
}

// MarkUpdated records a successful synchronization at t.
func (s *Settings) MarkUpdated(t time.Time) {
	s.LastUpdate = t.Format(time.RFC3339)
}

// ResetUpdate forces the next flush to be a full resynchronization.
func (s *Settings) ResetUpdate() {
	s.LastUpdate = NeverUpdated
}

// LastUpdateTime parses the marker. ok is false for the sentinel or an unparsable value.
func (s *Settings) LastUpdateTime() (t time.Time, ok bool) {
	if s.NeverSynced() {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.LastUpdate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns an independent copy.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}
