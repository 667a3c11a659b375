package charging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Config struct {
	// Nodes is the candidate list. Empty means DefaultRegistry.
	Nodes Registry
	// IO defaults to DefaultIO over the OS filesystem.
	IO     NodeIO
	Logger logrus.FieldLogger
}

// Control is the charging switch. It is Bound when a node was found at
// construction and Unbound otherwise; the state never changes afterwards.
//
// Control holds no lock. Concurrent calls are safe for Control itself, but
// concurrent SetEnabled calls race at the node.
type Control struct {
	nodes Registry
	bound int
	nio   NodeIO
	log   logrus.FieldLogger
}

// New resolves the control node and returns a Control bound to it, or an
// unbound Control if no candidate exists. It fails only on an invalid registry.
func New(cfg Config) (*Control, error) {
	nodes := cfg.Nodes
	if len(nodes) == 0 {
		nodes = DefaultRegistry()
	} else {
		nodes = append(Registry(nil), nodes...)
	}
	if err := nodes.Validate(); err != nil {
		return nil, err
	}
	nio := cfg.IO
	if nio == nil {
		nio = DefaultIO(afero.NewOsFs())
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "charging")

	idx, ok := nodes.Resolve(nio, log)
	if !ok {
		log.WithField("candidates", len(nodes)).Error("no charging enabled node found; charging control unsupported")
	}
	return &Control{nodes: nodes, bound: idx, nio: nio, log: log}, nil
}

// Node returns the bound node.
func (c *Control) Node() (ControlNode, bool) {
	if c.bound < 0 || c.bound >= len(c.nodes) {
		return ControlNode{}, false
	}
	return c.nodes[c.bound], true
}

// Candidates returns a copy of the registry the Control was resolved against.
func (c *Control) Candidates() Registry {
	return append(Registry(nil), c.nodes...)
}

// GetEnabled reads the node and decodes its token.
func (c *Control) GetEnabled() (bool, error) {
	node, ok := c.Node()
	if !ok {
		c.log.Error("charging switch state isn't available: node is unbound")
		return false, unsupported("get")
	}
	log := c.log.WithField("node", node.String())

	tok, err := c.nio.ReadToken(node)
	if err != nil {
		log.WithError(err).Error("failed to read charging enabled node")
		return false, illegalState("get", node.String(), "node unreadable", err)
	}

	switch tok {
	case node.TrueToken:
		log.WithField("token", tok).Debug("charging enabled: true")
		return true, nil
	case node.FalseToken:
		log.WithField("token", tok).Debug("charging enabled: false")
		return false, nil
	}
	log.WithField("token", tok).Error("unknown charging enabled value")
	return false, illegalState("get", node.String(), fmt.Sprintf("unknown value %q", tok), nil)
}

// SetEnabled writes the token for v. It does not retry.
func (c *Control) SetEnabled(v bool) error {
	c.log.WithField("enabled", v).Info("charging switch should be set")
	node, ok := c.Node()
	if !ok {
		c.log.Error("charging switch state isn't available: node is unbound")
		return unsupported("set")
	}
	log := c.log.WithField("node", node.String())

	tok := node.FalseToken
	if v {
		tok = node.TrueToken
	}
	if err := c.nio.WriteToken(node, tok); err != nil {
		e := illegalState("set", node.String(), "failed to write node", err)
		e.Detail = platformDetail(err)
		log.WithError(err).WithField("detail", e.Detail).Error("failed to write charging enabled node")
		return e
	}
	log.WithField("enabled", v).Info("charging switch was set")
	return nil
}

// Close releases node handles held by the IO, such as requested GPIO lines.
// Control must not be used afterwards.
func (c *Control) Close() error {
	if cl, ok := c.nio.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
