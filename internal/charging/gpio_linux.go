//go:build linux

package charging

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "healthd-ng-charging"

// GPIOIO drives charger-enable pins wired to a GPIO line. Path is the chip
// device (e.g. /dev/gpiochip0) and Line the line name. Line value 1 reads as
// token "1", 0 as "0".
//
// The first write requests the line as an output and keeps it until Close: a
// released line may revert to an input and float, so the level would not hold.
// Later writes and reads go through the held line.
type GPIOIO struct {
	mu    sync.Mutex
	lines map[string]*gpiocdev.Line
}

func NewGPIOIO() *GPIOIO { return &GPIOIO{lines: make(map[string]*gpiocdev.Line)} }

func (g *GPIOIO) openLine(n ControlNode) (*gpiocdev.Chip, int, error) {
	chip, err := gpiocdev.NewChip(n.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	offset, err := chip.FindLine(n.Line)
	if err != nil {
		_ = chip.Close()
		return nil, 0, fmt.Errorf("open: line %q: %w", n.Line, err)
	}
	return chip, offset, nil
}

func (g *GPIOIO) Probe(n ControlNode) error {
	g.mu.Lock()
	_, held := g.lines[n.String()]
	g.mu.Unlock()
	if held {
		return nil
	}
	chip, _, err := g.openLine(n)
	if err != nil {
		return err
	}
	return chip.Close()
}

func (g *GPIOIO) ReadToken(n ControlNode) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if line, ok := g.lines[n.String()]; ok {
		v, err := line.Value()
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		return strconv.Itoa(v), nil
	}

	chip, offset, err := g.openLine(n)
	if err != nil {
		return "", err
	}
	defer chip.Close()

	// AsIs leaves the line direction alone so reading never flips a driven pin.
	line, err := chip.RequestLine(offset, gpiocdev.AsIs, gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return "", fmt.Errorf("open: request line %q: %w", n.Line, err)
	}
	defer line.Close()

	v, err := line.Value()
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strconv.Itoa(v), nil
}

func (g *GPIOIO) WriteToken(n ControlNode, token string) error {
	v, err := gpioLevel(token)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if line, ok := g.lines[n.String()]; ok {
		if err := line.SetValue(v); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return nil
	}

	chip, offset, err := g.openLine(n)
	if err != nil {
		return err
	}
	// The requested line owns its own handle and outlives the chip.
	defer chip.Close()

	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(v), gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return fmt.Errorf("write: request line %q: %w", n.Line, err)
	}
	g.lines[n.String()] = line
	return nil
}

// Close releases every held line. The lines keep no level after this.
func (g *GPIOIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for key, line := range g.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %s: %w", key, err))
		}
		delete(g.lines, key)
	}
	return errors.Join(errs...)
}
