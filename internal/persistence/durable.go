package persistence

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/barograph/internal/core"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Keys of the durable store.
const (
	KeyCounters                  = "prefs"
	KeyPressureCorrectionEnabled = "applyPCorr"
	KeyPressureCorrectionValue   = "pCorrValue"
	KeyInversionEnabled          = "applyInversion"
	KeyMeasurementInterval       = "measIntervalSec"
	KeyTimeRangeHours            = "timeRangeHours"
	KeyGraphicsMode              = "graphicsType"
)

// DurableSnapshot is what the durable store holds. HasCounters is false
// until the counters have been written once.
type DurableSnapshot struct {
	HasCounters bool
	Counters    core.Counters
	Prefs       types.Preferences
}

// DurableStore holds the tier that survives power loss.
type DurableStore interface {
	Load(defaults types.Preferences) (DurableSnapshot, error)
	SavePreferences(p types.Preferences) error
	SaveCounters(c core.Counters) error
	Close() error
}

// counterBlob is the compact counter record. Spare is reserved.
type counterBlob struct {
	TotalBoots            uint32 `msgpack:"boots"`
	DischargeCycles       uint32 `msgpack:"dischg"`
	PrevBatteryMicrovolts int64  `msgpack:"prev_uv"`
	Spare                 uint32 `msgpack:"spare"`
}

const upsert = `INSERT INTO kv (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

// SQLiteDurable keeps the durable tier in a single-table SQLite database.
type SQLiteDurable struct {
	db     *sql.DB
	dbPath string
	logger *zap.SugaredLogger
}

// NewSQLiteDurable opens (creating if needed) the database at dbPath.
func NewSQLiteDurable(dbPath string, logger *zap.SugaredLogger) (*SQLiteDurable, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	m := migrate.NewMigrator(db, migrate.NewFSSource(migrationFS, "migrations"), "", logger)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate durable schema: %w", err)
	}

	return &SQLiteDurable{db: db, dbPath: dbPath, logger: logger}, nil
}

func (d *SQLiteDurable) Close() error {
	return d.db.Close()
}

func (d *SQLiteDurable) readAll() (map[string][]byte, error) {
	rows, err := d.db.Query(`SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to query durable store: %w", err)
	}
	defer rows.Close()

	values := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan durable row: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Load reads counters and preferences. Preference keys that are missing
// or unreadable take their value from defaults and are written back.
func (d *SQLiteDurable) Load(defaults types.Preferences) (DurableSnapshot, error) {
	values, err := d.readAll()
	if err != nil {
		return DurableSnapshot{}, err
	}

	var snap DurableSnapshot
	if raw, ok := values[KeyCounters]; ok {
		var blob counterBlob
		if err := msgpack.Unmarshal(raw, &blob); err != nil {
			d.logger.Warnf("durable counters unreadable, starting from zero: %v", err)
		} else {
			snap.HasCounters = true
			snap.Counters = core.Counters{
				TotalBoots:            blob.TotalBoots,
				DischargeCycles:       blob.DischargeCycles,
				PrevBatteryMicrovolts: blob.PrevBatteryMicrovolts,
			}
		}
	}

	p := defaults
	missing := false
	lookup := func(key string, parse func(string) error) {
		raw, ok := values[key]
		if !ok {
			d.logger.Infof("durable key %s missing, using default", key)
			missing = true
			return
		}
		if err := parse(string(raw)); err != nil {
			d.logger.Warnf("durable key %s unreadable (%q), using default: %v", key, raw, err)
			missing = true
		}
	}

	lookup(KeyPressureCorrectionEnabled, func(s string) error {
		v, err := strconv.ParseBool(s)
		if err == nil {
			p.PressureCorrectionEnabled = v
		}
		return err
	})
	lookup(KeyPressureCorrectionValue, func(s string) error {
		v, err := strconv.ParseFloat(s, 32)
		if err == nil {
			p.PressureCorrectionValue = float32(v)
		}
		return err
	})
	lookup(KeyInversionEnabled, func(s string) error {
		v, err := strconv.ParseBool(s)
		if err == nil {
			p.InversionEnabled = v
		}
		return err
	})
	lookup(KeyMeasurementInterval, func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err == nil && v == 0 {
			err = fmt.Errorf("interval must be positive")
		}
		if err == nil {
			p.MeasurementIntervalSeconds = uint32(v)
		}
		return err
	})
	lookup(KeyTimeRangeHours, func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err == nil {
			p.TimeRangeHours = uint32(v)
		}
		return err
	})
	lookup(KeyGraphicsMode, func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err == nil && !types.GraphicsMode(v).Valid() {
			err = fmt.Errorf("unknown graphics mode %d", v)
		}
		if err == nil {
			p.GraphicsMode = types.GraphicsMode(v)
		}
		return err
	})
	snap.Prefs = p

	if missing {
		if err := d.SavePreferences(p); err != nil {
			return snap, fmt.Errorf("failed to write back default preferences: %w", err)
		}
	}
	return snap, nil
}

// SavePreferences writes every preference key in one transaction.
func (d *SQLiteDurable) SavePreferences(p types.Preferences) error {
	kv := [][2]string{
		{KeyPressureCorrectionEnabled, strconv.FormatBool(p.PressureCorrectionEnabled)},
		{KeyPressureCorrectionValue, strconv.FormatFloat(float64(p.PressureCorrectionValue), 'f', -1, 32)},
		{KeyInversionEnabled, strconv.FormatBool(p.InversionEnabled)},
		{KeyMeasurementInterval, strconv.FormatUint(uint64(p.MeasurementIntervalSeconds), 10)},
		{KeyTimeRangeHours, strconv.FormatUint(uint64(p.TimeRangeHours), 10)},
		{KeyGraphicsMode, strconv.FormatUint(uint64(p.GraphicsMode), 10)},
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range kv {
		if _, err := tx.Exec(upsert, e[0], []byte(e[1])); err != nil {
			return fmt.Errorf("failed to write %s: %w", e[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}

// SaveCounters writes the compact counter record.
func (d *SQLiteDurable) SaveCounters(c core.Counters) error {
	raw, err := msgpack.Marshal(&counterBlob{
		TotalBoots:            c.TotalBoots,
		DischargeCycles:       c.DischargeCycles,
		PrevBatteryMicrovolts: c.PrevBatteryMicrovolts,
	})
	if err != nil {
		return fmt.Errorf("failed to encode counters: %w", err)
	}
	if _, err := d.db.Exec(upsert, KeyCounters, raw); err != nil {
		return fmt.Errorf("failed to write counters: %w", err)
	}
	return nil
}
