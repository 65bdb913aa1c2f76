package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"github.com/chrissnell/barograph/internal/types"
)

const (
	defaultBaud        = 9600
	defaultReadTimeout = 2 * time.Second

	readCommand = "R\r\n"
)

// Serial talks to a sensor board over a serial line. Each read sends a
// request and expects one reply line of the form
//
//	P,T,H[,V]
//
// with pressure in hPa, temperature in °C, relative humidity in percent
// and an optional battery voltage.
type Serial struct {
	device  string
	baud    int
	timeout time.Duration
	logger  *zap.SugaredLogger

	open func() (io.ReadWriteCloser, error)

	mu     sync.Mutex
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	volts  float32
}

func NewSerial(device string, baud int, timeout time.Duration, logger *zap.SugaredLogger) *Serial {
	if baud == 0 {
		baud = defaultBaud
	}
	if timeout == 0 {
		timeout = defaultReadTimeout
	}
	s := &Serial{
		device:  device,
		baud:    baud,
		timeout: timeout,
		logger:  logger,
	}
	s.open = func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: s.device, Baud: s.baud})
	}
	return s
}

// NewNetwork speaks the same line protocol over TCP, as served by a
// serial-to-network bridge or the sensor emulator.
func NewNetwork(address string, timeout time.Duration, logger *zap.SugaredLogger) *Serial {
	s := NewSerial(address, 0, timeout, logger)
	s.open = func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", address, s.timeout)
	}
	return s
}

func (s *Serial) connect() error {
	if s.rwc != nil {
		return nil
	}
	s.logger.Debugf("opening sensor %s", s.device)
	rwc, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open sensor %s: %v", s.device, err)
	}
	s.rwc = rwc
	s.reader = bufio.NewReader(rwc)
	return nil
}

// disconnect drops the port so the next read reopens it.
func (s *Serial) disconnect() {
	if s.rwc == nil {
		return
	}
	if err := s.rwc.Close(); err != nil {
		s.logger.Warnf("error closing serial port %s: %v", s.device, err)
	}
	s.rwc = nil
	s.reader = nil
}

func (s *Serial) Read(ctx context.Context) (types.RawReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.request(ctx)
	if err != nil {
		s.disconnect()
		return types.RawReading{}, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}

	reading, volts, err := ParseLine(line)
	if err != nil {
		return types.RawReading{}, fmt.Errorf("%w: %v", ErrSensorRead, err)
	}
	if volts > 0 {
		s.volts = volts
	}
	return reading, nil
}

func (s *Serial) request(ctx context.Context) (string, error) {
	if err := s.connect(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(s.rwc, readCommand); err != nil {
		return "", fmt.Errorf("error writing read request: %v", err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	reader := s.reader
	go func() {
		line, err := reader.ReadString('\n')
		done <- result{line, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("error reading reply: %v", r.err)
		}
		return r.line, nil
	case <-timer.C:
		return "", fmt.Errorf("no reply within %v", s.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Battery returns a collaborator that reports the voltage carried by the
// most recent sensor reply.
func (s *Serial) Battery() Battery {
	return serialBattery{s}
}

type serialBattery struct {
	s *Serial
}

func (b serialBattery) Read(_ context.Context) (types.BatteryReading, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.volts == 0 {
		return types.BatteryReading{}, fmt.Errorf("%w: no battery voltage reported yet", ErrSensorRead)
	}
	return Reading(b.s.volts), nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
	return nil
}

// FormatLine renders a reply line. A zero volts omits the battery field.
func FormatLine(r types.RawReading, volts float32) string {
	line := fmt.Sprintf("%.2f,%.2f,%.1f", r.PressureHPa, r.TemperatureC, r.HumidityPercent)
	if volts > 0 {
		line += fmt.Sprintf(",%.3f", volts)
	}
	return line + "\r\n"
}

// ParseLine decodes one reply line. The returned voltage is zero when the
// line carries no battery field.
func ParseLine(line string) (types.RawReading, float32, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 && len(fields) != 4 {
		return types.RawReading{}, 0, fmt.Errorf("malformed reply %q: want 3 or 4 fields, got %d", line, len(fields))
	}

	values := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return types.RawReading{}, 0, fmt.Errorf("malformed field %d in %q: %v", i, line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.RawReading{}, 0, fmt.Errorf("non-finite field %d in %q", i, line)
		}
		values[i] = float32(v)
	}

	r := types.RawReading{
		PressureHPa:     values[0],
		TemperatureC:    values[1],
		HumidityPercent: values[2],
	}
	if r.PressureHPa < 300 || r.PressureHPa > 1100 {
		return types.RawReading{}, 0, fmt.Errorf("pressure %v hPa out of range", r.PressureHPa)
	}
	if r.HumidityPercent < 0 || r.HumidityPercent > 100 {
		return types.RawReading{}, 0, fmt.Errorf("humidity %v%% out of range", r.HumidityPercent)
	}

	var volts float32
	if len(values) == 4 {
		volts = values[3]
	}
	return r, volts, nil
}
