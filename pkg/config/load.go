package config

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/twpayne/go-vfs"
	"gopkg.in/yaml.v3"
)

const (
	YAMLFileName = "metadata.yaml"
	JSONFileName = "metadata.json"
)

// ErrEmpty is the cause of Load errors for metadata files without a document.
var ErrEmpty = errors.New("empty metadata")

// Locate returns the metadata file of the app in appDir.
// metadata.yaml takes precedence over metadata.json. It returns false when neither exists.
func Locate(fs vfs.FS, appDir string) (string, bool, error) {
	for _, name := range []string{YAMLFileName, JSONFileName} {
		p := JoinPath(appDir, name)
		info, err := fs.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, errors.Wrapf(err, "stat %s", p)
		}
		if info.Mode().IsRegular() {
			return p, true, nil
		}
	}
	return "", false, nil
}

// Load reads and validates the metadata file at path.
// Files ending in .json are decoded as JSON, anything else as YAML.
func Load(fs vfs.FS, path string) (*AppMetadata, error) {
	bs, err := fs.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata")
	}

	if len(strings.TrimSpace(string(bs))) == 0 {
		return nil, errors.Wrapf(ErrEmpty, "%s", path)
	}

	isJSON := filepath.Ext(path) == ".json"

	var doc interface{}
	if isJSON {
		err = json.Unmarshal(bs, &doc)
	} else {
		err = yaml.Unmarshal(bs, &doc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if doc == nil {
		return nil, errors.Wrapf(ErrEmpty, "%s", path)
	}

	if err := validate(doc); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	meta := &AppMetadata{}
	if isJSON {
		err = json.Unmarshal(bs, meta)
	} else {
		err = yaml.Unmarshal(bs, meta)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	return meta, nil
}

// LoadApp locates and loads the metadata of the app in appDir.
func LoadApp(fs vfs.FS, appDir string) (*AppMetadata, string, error) {
	path, ok, err := Locate(fs, appDir)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", errors.Errorf("no %s or %s found in %s", YAMLFileName, JSONFileName, appDir)
	}

	meta, err := Load(fs, path)
	if err != nil {
		return nil, "", err
	}
	return meta, path, nil
}

// JoinPath appends elem to dir without cleaning dir, so that "./apps/plex" keeps its leading "./".
func JoinPath(dir string, elem ...string) string {
	return strings.TrimSuffix(dir, "/") + "/" + path.Join(elem...)
}
