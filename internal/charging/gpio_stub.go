//go:build !linux

package charging

import "fmt"

// GPIOIO is unavailable off linux; every call fails.
type GPIOIO struct{}

func NewGPIOIO() *GPIOIO { return &GPIOIO{} }

func (g *GPIOIO) Probe(n ControlNode) error {
	return fmt.Errorf("gpio unsupported on this platform")
}

func (g *GPIOIO) ReadToken(n ControlNode) (string, error) {
	return "", fmt.Errorf("open: gpio unsupported on this platform")
}

func (g *GPIOIO) WriteToken(n ControlNode, token string) error {
	if _, err := gpioLevel(token); err != nil {
		return err
	}
	return fmt.Errorf("open: gpio unsupported on this platform")
}

func (g *GPIOIO) Close() error { return nil }
