// Package gate drives the door actuator. Every implementation returns
// from Open immediately; closing happens on a timer.
package gate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultOpenTime is how long the gate stays open after a grant.
const DefaultOpenTime = 5 * time.Second

// DefaultSysfsRoot is the Linux sysfs GPIO directory.
const DefaultSysfsRoot = "/sys/class/gpio"

// Nop ignores every Open. Used where no hardware is attached, such as
// the operator HTTP API.
type Nop struct{}

func (Nop) Open() {}

// Logging only logs. Used by simulation and on machines without GPIO.
type Logging struct {
	Log logrus.FieldLogger
}

func (g Logging) Open() {
	g.Log.WithField("component", "gate").Info("gate open signal")
}

// Sysfs drives a GPIO pin through the sysfs interface: high on Open, low
// after openTime. A second Open while the gate is up restarts the timer.
type Sysfs struct {
	root     string
	pin      int
	openTime time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	timer *time.Timer
	// gen counts opens; a close timer only acts for the open that armed it.
	gen uint64
}

// NewSysfs exports pin and sets it as a low output. root is normally
// DefaultSysfsRoot.
func NewSysfs(root string, pin int, openTime time.Duration, logger logrus.FieldLogger) (*Sysfs, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("gate: invalid gpio pin %d", pin)
	}
	if openTime <= 0 {
		openTime = DefaultOpenTime
	}
	if root == "" {
		root = DefaultSysfsRoot
	}
	g := &Sysfs{
		root:     root,
		pin:      pin,
		openTime: openTime,
		log:      logger.WithFields(logrus.Fields{"component": "gate", "gpio_pin": pin}),
	}

	if _, err := os.Stat(g.pinDir()); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("gate: export gpio %d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(g.pinDir(), "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("gate: set gpio %d direction: %w", pin, err)
	}
	if err := g.write(false); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Sysfs) pinDir() string {
	return filepath.Join(g.root, "gpio"+strconv.Itoa(g.pin))
}

func (g *Sysfs) write(high bool) error {
	v := []byte("0")
	if high {
		v = []byte("1")
	}
	if err := os.WriteFile(filepath.Join(g.pinDir(), "value"), v, 0o644); err != nil {
		return fmt.Errorf("gate: write gpio %d: %w", g.pin, err)
	}
	return nil
}

func (g *Sysfs) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.write(true); err != nil {
		g.log.WithError(err).Error("gate open failed")
		return
	}
	g.log.WithField("open_time", g.openTime.String()).Info("gate opened")

	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.openTime, func() { g.close(gen) })
}

// close drives the pin low unless a later Open has re-armed the gate.
func (g *Sysfs) close(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	if err := g.write(false); err != nil {
		g.log.WithError(err).Error("gate close failed")
		return
	}
	g.log.Info("gate closed")
}

// Close drives the pin low and cancels any pending close timer.
func (g *Sysfs) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	return g.write(false)
}
