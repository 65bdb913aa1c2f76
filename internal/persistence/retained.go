// Package persistence bridges the barograph state to its two storage tiers:
// a retained image that survives suspend (the whole timeline and scheduler
// bookkeeping) and a durable key/value store that survives power loss
// (counters and user preferences).
package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/timeline"
	"github.com/chrissnell/barograph/internal/types"
)

// ErrNoRetainedState means there is nothing to resume from and the device
// must cold start.
var ErrNoRetainedState = errors.New("no retained state")

const retainedVersion = 1

// RetainedStore holds the tier that survives suspend.
type RetainedStore interface {
	Load() (*core.State, error)
	Save(st *core.State) error
	Clear() error
}

type retainedImage struct {
	Version                int                  `msgpack:"v"`
	Timeline               timeline.Image       `msgpack:"tl"`
	Scheduler              core.SchedulerState  `msgpack:"sched"`
	Counters               core.Counters        `msgpack:"ctr"`
	Prefs                  types.Preferences    `msgpack:"prefs"`
	PreferencesChanged     bool                 `msgpack:"dirty"`
	SecondsSinceLastSample float32              `msgpack:"since"`
	Battery                types.BatteryReading `msgpack:"batt"`
	SensorFault            bool                 `msgpack:"fault"`
}

// FileRetained keeps the retained image in a single msgpack file.
type FileRetained struct {
	fs   afero.Fs
	path string
}

func NewFileRetained(fs afero.Fs, path string) *FileRetained {
	return &FileRetained{fs: fs, path: path}
}

func (r *FileRetained) Load() (*core.State, error) {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRetainedState
		}
		return nil, fmt.Errorf("error reading retained state %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return nil, ErrNoRetainedState
	}

	var img retainedImage
	if err := msgpack.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("error decoding retained state %s: %w", r.path, err)
	}
	if img.Version != retainedVersion {
		return nil, fmt.Errorf("retained state %s has version %d, want %d", r.path, img.Version, retainedVersion)
	}

	tl, err := timeline.FromImage(img.Timeline)
	if err != nil {
		return nil, fmt.Errorf("retained state %s: %w", r.path, err)
	}

	return &core.State{
		Timeline:               tl,
		Scheduler:              img.Scheduler,
		Counters:               img.Counters,
		Prefs:                  img.Prefs,
		PreferencesChanged:     img.PreferencesChanged,
		SecondsSinceLastSample: img.SecondsSinceLastSample,
		Battery:                img.Battery,
		SensorFault:            img.SensorFault,
	}, nil
}

// Save writes the image to a temporary file and renames it into place so a
// crash mid-write leaves the previous image intact.
func (r *FileRetained) Save(st *core.State) error {
	img := retainedImage{
		Version:                retainedVersion,
		Timeline:               st.Timeline.Image(),
		Scheduler:              st.Scheduler,
		Counters:               st.Counters,
		Prefs:                  st.Prefs,
		PreferencesChanged:     st.PreferencesChanged,
		SecondsSinceLastSample: st.SecondsSinceLastSample,
		Battery:                st.Battery,
		SensorFault:            st.SensorFault,
	}
	data, err := msgpack.Marshal(&img)
	if err != nil {
		return fmt.Errorf("error encoding retained state: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating %s: %w", dir, err)
		}
	}
	tmp := r.path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing retained state %s: %w", tmp, err)
	}
	if err := r.fs.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("error replacing retained state %s: %w", r.path, err)
	}
	return nil
}

// Clear discards the retained image, the equivalent of a power loss.
func (r *FileRetained) Clear() error {
	if err := r.fs.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing retained state %s: %w", r.path, err)
	}
	return nil
}
