package amrsweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	defaultBaudRate         = 9600
	defaultSourceCurrent    = 1e-4 // amps
	defaultMeterReadTimeout = 5 * time.Second
	// A port read returns empty after this long, so cancellation is seen promptly.
	portPollInterval = 100 * time.Millisecond
)

var errMeterTimeout = errors.New("source meter did not answer")

// keithley talks SCPI to a Keithley 24xx source meter over its RS-232 port. The meter
// is put in manual-source four-wire resistance mode: it sources a fixed current and
// returns resistance for each trigger.
type keithley struct {
	mu           sync.Mutex
	port         serial.Port
	current      float64
	replyTimeout time.Duration
}

func openKeithley(portName string, baudRate int, current float64) (*keithley, error) {
	if baudRate <= 0 {
		baudRate = defaultBaudRate
	}
	p, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}
	if err := p.SetReadTimeout(portPollInterval); err != nil {
		p.Close()
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}

	k := newKeithley(p, current)
	if err := k.configure(); err != nil {
		p.Close()
		return nil, err
	}
	return k, nil
}

func newKeithley(port serial.Port, current float64) *keithley {
	if current <= 0 {
		current = defaultSourceCurrent
	}
	return &keithley{
		port:         port,
		current:      current,
		replyTimeout: defaultMeterReadTimeout,
	}
}

func (k *keithley) configure() error {
	cmds := []string{
		"*RST",
		`:SENS:FUNC "RES"`,
		":SENS:RES:MODE MAN",
		":SYST:RSEN ON",
		":SOUR:FUNC CURR",
		":SOUR:CURR " + strconv.FormatFloat(k.current, 'e', -1, 64),
		":FORM:ELEM RES",
		":OUTP ON",
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, cmd := range cmds {
		if err := k.write(cmd); err != nil {
			return fmt.Errorf("configuring source meter: %w", err)
		}
	}
	return nil
}

func (k *keithley) write(cmd string) error {
	_, err := io.WriteString(k.port, cmd+"\n")
	return err
}

// ReadResistances triggers n readings with a single :READ? and parses the reply.
func (k *keithley) ReadResistances(ctx context.Context, n int) ([]float64, error) {
	if n < 1 {
		return nil, ErrNoMeasurements
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	// Drop a late reply to an earlier, timed out request.
	if err := k.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("clearing serial input: %w", err)
	}
	if err := k.write(":TRIG:COUN " + strconv.Itoa(n)); err != nil {
		return nil, fmt.Errorf("setting trigger count: %w", err)
	}
	if err := k.write(":READ?"); err != nil {
		return nil, fmt.Errorf("requesting readings: %w", err)
	}

	line, err := k.readLine(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading source meter reply: %w", err)
	}
	values, err := parseReadings(line)
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("expected %d readings, got %d", n, len(values))
	}
	return values, nil
}

// readLine collects bytes up to a newline. The serial port reports a poll timeout as
// (0, nil), so empty reads are counted against replyTimeout and ctx is checked
// between them.
func (k *keithley) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(k.replyTimeout)
	var line []byte
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := k.port.Read(buf)
		if n > 0 {
			line = append(line, buf[:n]...)
			if i := bytes.IndexByte(line, '\n'); i >= 0 {
				return string(line[:i]), nil
			}
		}
		if err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w within %v", errMeterTimeout, k.replyTimeout)
		}
	}
}

func parseReadings(line string) ([]float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New("empty source meter reply")
	}
	fields := strings.Split(line, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing reading %q: %w", f, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Close turns the source output off before releasing the port.
func (k *keithley) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	werr := k.write(":OUTP OFF")
	return errors.Join(werr, k.port.Close())
}
