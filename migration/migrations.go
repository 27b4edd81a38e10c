package migration

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// V0_1ToV0_2 adds the `[update]` config section introduced in spec §6's
// configuration table (auto_check, check_interval, notify) to a
// config.toml written by an older build that predates it. Grounded
// directly on the original v0.1→v0.2 migration's behavior: a no-op if
// config.toml doesn't exist, a no-op if `[update]` is already present.
type V0_1ToV0_2 struct{}

func (V0_1ToV0_2) FromVersion() Version { return NewVersion(0, 1, 0) }
func (V0_1ToV0_2) ToVersion() Version   { return NewVersion(0, 2, 0) }
func (V0_1ToV0_2) Description() string  { return "Add [update] config section" }
func (V0_1ToV0_2) ID() string           { return "0_1_to_0_2" }

func (V0_1ToV0_2) Up(dataDir string) error {
	path := filepath.Join(dataDir, "config.toml")
	doc, ok, err := readConfigDoc(path)
	if err != nil || !ok {
		return err
	}
	if _, present := doc["update"]; present {
		return nil
	}
	doc["update"] = map[string]any{
		"auto_check":     false,
		"check_interval": "86400s",
		"notify":         true,
	}
	return writeConfigDoc(path, doc)
}

func (V0_1ToV0_2) Down(dataDir string) error {
	path := filepath.Join(dataDir, "config.toml")
	doc, ok, err := readConfigDoc(path)
	if err != nil || !ok {
		return err
	}
	if _, present := doc["update"]; !present {
		return nil
	}
	delete(doc, "update")
	return writeConfigDoc(path, doc)
}

func readConfigDoc(path string) (map[string]any, bool, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is derived from the operator's own data directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, yerr.Wrap(yerr.KindConfigError, "failed to read config for migration", err)
	}
	doc := map[string]any{}
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return nil, false, yerr.Wrap(yerr.KindConfigError, "failed to parse config for migration", err)
	}
	return doc, true, nil
}

func writeConfigDoc(path string, doc map[string]any) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode migrated config", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}
