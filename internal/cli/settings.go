package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// settingKeys maps the keys accepted by "settings set" to their setters.
var settingKeys = map[string]func(s *domain.Settings, value string) error{
	"data-dir": func(s *domain.Settings, value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("data-dir cannot be empty")
		}
		s.DataDir = value
		return nil
	},
	"continuous-update": func(s *domain.Settings, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("continuous-update: %w", err)
		}
		s.ContinuousUpdate = b
		return nil
	},
	"continuous-analysis": func(s *domain.Settings, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("continuous-analysis: %w", err)
		}
		s.ContinuousAnalysis = b
		return nil
	},
	"last-update": func(s *domain.Settings, value string) error {
		if value != domain.NeverUpdated {
			return fmt.Errorf("last-update can only be reset to %q", domain.NeverUpdated)
		}
		s.ResetUpdate()
		return nil
	},
}

// SettingKeys lists the keys accepted by SetSetting.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetSetting changes one field of s.
func SetSetting(s *domain.Settings, key, value string) error {
	set, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(SettingKeys(), ", "))
	}
	return set(s, value)
}
