package charging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// ControlNode is one kernel interface variant for the charging switch.
//
// Path is a sysfs-style text file holding TrueToken or FalseToken. When Line
// is set, Path names a GPIO character device and Line the line name on it.
type ControlNode struct {
	Path       string `json:"path"`
	TrueToken  string `json:"true_token"`
	FalseToken string `json:"false_token"`
	Line       string `json:"line,omitempty"`
}

func (n ControlNode) String() string {
	if n.Line != "" {
		return n.Path + ":" + n.Line
	}
	return n.Path
}

// Registry is the ordered candidate list. The first entry present on the
// running device wins.
type Registry []ControlNode

// Known kernel interfaces, in probe order.
var defaultNodes = [...]ControlNode{
	{Path: "/sys/devices/virtual/oplus_chg/battery/mmi_charging_enable", TrueToken: "1", FalseToken: "0"},
}

// DefaultRegistry returns a copy of the built-in candidate list.
func DefaultRegistry() Registry {
	return append(Registry(nil), defaultNodes[:]...)
}

// Validate checks that every entry can be probed and decoded.
func (r Registry) Validate() error {
	for i, n := range r {
		if strings.TrimSpace(n.Path) == "" {
			return fmt.Errorf("charging: node %d: path is required", i)
		}
		if n.TrueToken == "" || n.FalseToken == "" {
			return fmt.Errorf("charging: node %d (%s): true and false tokens are required", i, n.Path)
		}
		if n.TrueToken == n.FalseToken {
			return fmt.Errorf("charging: node %d (%s): true and false tokens must differ", i, n.Path)
		}
		if strings.ContainsAny(n.TrueToken, tokenSpace) || strings.ContainsAny(n.FalseToken, tokenSpace) {
			return fmt.Errorf("charging: node %d (%s): tokens must not contain whitespace", i, n.Path)
		}
		if n.Line != "" {
			if _, err := gpioLevel(n.TrueToken); err != nil {
				return fmt.Errorf("charging: node %d (%s): gpio tokens must be \"0\" or \"1\"", i, n)
			}
			if _, err := gpioLevel(n.FalseToken); err != nil {
				return fmt.Errorf("charging: node %d (%s): gpio tokens must be \"0\" or \"1\"", i, n)
			}
		}
	}
	return nil
}

// Resolve probes entries in declared order and returns the index of the first
// one that exists and opens for reading. Entries after a match are not probed.
func (r Registry) Resolve(nio NodeIO, log logrus.FieldLogger) (int, bool) {
	for i, n := range r {
		if err := nio.Probe(n); err != nil {
			if log != nil {
				log.WithField("node", n.String()).WithError(err).Warn("charging enabled node doesn't exist")
			}
			continue
		}
		if log != nil {
			log.WithField("node", n.String()).Info("found charging enabled node")
		}
		return i, true
	}
	return -1, false
}
