package scheduler

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/PIFO-TM/ns3-bmv2/buffer"
)

// OracleArtifact is the two-string artifact reference the config
// format carries per oracle entry (spec §6.2): an oracle program path
// and an oracle table-commands path. The core passes both verbatim to
// an OracleFactory; it never opens or interprets them.
type OracleArtifact [2]string

// BufferConfig is the JSON-shaped buffer section of Config.
type BufferConfig struct {
	NumBufIDs       uint32           `json:"num-bufIDs"`
	PartitionSizes  []uint64         `json:"partition-sizes"`
	BufIDMap        map[string][]int `json:"bufID-map"`
}

// Config is the declarative scheduler configuration (spec §6.1).
type Config struct {
	ClassLogic   OracleArtifact            `json:"class-logic"`
	BufferConfig BufferConfig              `json:"buffer-config"`
	NumNodes     uint32                    `json:"num-nodes"`
	Tree         map[string][]uint32       `json:"tree"`
	NumPifos     map[string]uint32         `json:"num-pifos"`
	EnqLogic     map[string]OracleArtifact `json:"enq-logic"`
	DeqLogic     map[string]OracleArtifact `json:"deq-logic"`
}

// validate checks the structural invariants spec §6.1 requires before
// any component is instantiated, collecting every problem it finds
// instead of stopping at the first.
func (c *Config) validate() error {
	var errs *multierror.Error

	nodeKey := func(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

	for id := uint32(0); id < c.NumNodes; id++ {
		k := nodeKey(id)
		if _, ok := c.NumPifos[k]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("node %d missing from num-pifos", id))
		}
		if _, ok := c.EnqLogic[k]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("node %d missing from enq-logic", id))
		}
		if _, ok := c.DeqLogic[k]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("node %d missing from deq-logic", id))
		}
	}

	childOf := make(map[uint32]uint32) // child -> parent, to detect multi-parent / cycles
	seenParent := make(map[uint32]bool)
	for parentStr, children := range c.Tree {
		parent, err := strconv.ParseUint(parentStr, 10, 32)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("tree: invalid parent id %q", parentStr))
			continue
		}
		if uint32(parent) >= c.NumNodes {
			errs = multierror.Append(errs, fmt.Errorf("tree: parent id %d out of range", parent))
		}
		seenParent[uint32(parent)] = true
		for _, child := range children {
			if child >= c.NumNodes {
				errs = multierror.Append(errs, fmt.Errorf("tree: child id %d out of range", child))
				continue
			}
			if prev, ok := childOf[child]; ok {
				errs = multierror.Append(errs, fmt.Errorf("tree: node %d has two parents (%d and %d)", child, prev, parent))
			}
			childOf[child] = uint32(parent)
		}
	}
	if c.NumNodes > 0 {
		if _, rootHasEntry := childOf[0]; rootHasEntry {
			errs = multierror.Append(errs, fmt.Errorf("tree: root (node 0) must not be any node's child"))
		}
		for id := uint32(1); id < c.NumNodes; id++ {
			if _, ok := childOf[id]; !ok {
				errs = multierror.Append(errs, fmt.Errorf("tree: node %d has no parent", id))
			}
		}
		if err := checkAcyclic(c.NumNodes, c.Tree); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if k1, ok := c.NumPifos[nodeKey(0)]; ok && k1 > 1 {
		if _, ok := c.DeqLogic[nodeKey(0)]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("root has %d pifos but no deq-logic to select among them", k1))
		}
	}

	for idStr, partitions := range c.BufferConfig.BufIDMap {
		if _, err := strconv.ParseUint(idStr, 10, 32); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("buffer-config: invalid bufID %q", idStr))
		}
		for _, p := range partitions {
			if p < 0 || p >= len(c.BufferConfig.PartitionSizes) {
				errs = multierror.Append(errs, fmt.Errorf("buffer-config: bufID %q references unknown partition %d", idStr, p))
			}
		}
	}

	return errs.ErrorOrNil()
}

func checkAcyclic(numNodes uint32, tree map[string][]uint32) error {
	children := make(map[uint32][]uint32)
	for parentStr, kids := range tree {
		parent, err := strconv.ParseUint(parentStr, 10, 32)
		if err != nil {
			continue
		}
		children[uint32(parent)] = kids
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[uint32]int)

	var visit func(n uint32) error
	visit = func(n uint32) error {
		color[n] = gray
		kids := append([]uint32(nil), children[n]...)
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
		for _, c := range kids {
			switch color[c] {
			case gray:
				return fmt.Errorf("tree: cycle detected through node %d", c)
			case white:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[n] = black
		return nil
	}

	if numNodes == 0 {
		return nil
	}
	if err := visit(0); err != nil {
		return err
	}
	// The root is never a child, so a cycle among other nodes is never
	// reached from it; any node left unvisited is off the root's tree.
	for id := uint32(1); id < numNodes; id++ {
		if color[id] == white {
			return fmt.Errorf("tree: node %d is not reachable from the root (cycle or missing parent)", id)
		}
	}
	return nil
}

func bufferConfigFromJSON(bc BufferConfig) buffer.Config {
	routes := make(map[uint32][]int, len(bc.BufIDMap))
	for idStr, partitions := range bc.BufIDMap {
		id, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			continue
		}
		routes[uint32(id)] = append([]int(nil), partitions...)
	}
	return buffer.Config{
		PartitionLimits: append([]uint64(nil), bc.PartitionSizes...),
		BufferRoutes:    routes,
	}
}
