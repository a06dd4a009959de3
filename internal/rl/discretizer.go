package rl

import (
	"strconv"
	"strings"

	"github.com/reflexcoder/autoagent/internal/models"
)

// Discretizer bins an observation's continuous features into a compact
// state key so the tabular learner can index them.
type Discretizer struct {
	// Bins per continuous feature; the position flag passes through.
	Bins int
	// Clip bound applied symmetrically before binning.
	Clip float64
}

func NewDiscretizer() *Discretizer {
	return &Discretizer{Bins: 9, Clip: 0.05}
}

// StateKey maps the observation to a string like "4|7|2|1".
func (d *Discretizer) StateKey(obs models.Observation) string {
	bins := d.Bins
	if bins < 2 {
		bins = 2
	}
	clip := d.Clip
	if clip <= 0 {
		clip = 0.05
	}

	parts := make([]string, 0, len(obs.Features))
	for i, f := range obs.Features {
		// Last feature is the position flag.
		if i == len(obs.Features)-1 {
			flag := 0
			if f > 0 {
				flag = 1
			}
			parts = append(parts, strconv.Itoa(flag))
			continue
		}
		parts = append(parts, strconv.Itoa(d.bin(f, bins, clip)))
	}
	return strings.Join(parts, "|")
}

func (d *Discretizer) bin(v float64, bins int, clip float64) int {
	if v < -clip {
		v = -clip
	}
	if v > clip {
		v = clip
	}
	// Shift [-clip, clip] onto [0, bins-1].
	idx := int((v + clip) / (2 * clip) * float64(bins))
	if idx >= bins {
		idx = bins - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
