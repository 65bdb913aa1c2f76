package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
)

var fileRegex = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// FSSource reads migrations named NNN_description.up.sql and
// NNN_description.down.sql from a directory of an fs.FS, typically an
// embed.FS.
type FSSource struct {
	fsys fs.FS
	dir  string
}

func NewFSSource(fsys fs.FS, dir string) *FSSource {
	if dir == "" {
		dir = "."
	}
	return &FSSource{fsys: fsys, dir: dir}
}

func (s *FSSource) Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations in %s: %w", s.dir, err)
	}

	byVersion := make(map[int]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := fileRegex.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", e.Name(), err)
		}
		content, err := fs.ReadFile(s.fsys, s.dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}

		name := strings.ReplaceAll(matches[2], "_", " ")
		mg, ok := byVersion[version]
		if !ok {
			mg = &Migration{Version: version, Name: name}
			byVersion[version] = mg
		} else if mg.Name != name {
			return nil, fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateVersion, version, mg.Name, name)
		}

		if matches[3] == "up" {
			mg.Up = string(content)
		} else {
			mg.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mg := range byVersion {
		migrations = append(migrations, *mg)
	}
	return migrations, nil
}
