/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: composite.go
Description: Composite mutator chaining several mutation strategies per candidate, in fixed
or random order, plus the default engine the command line wires into a campaign.
*/

package strategies

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/kleascm/simfuzz/pkg/core"
)

// CompositeMutator applies a chain of mutators to produce one candidate
type CompositeMutator struct {
	mutators    []core.Mutator // Mutators to chain
	chainLength int            // Mutators applied per candidate
	randomOrder bool           // Shuffle the chain for every candidate
}

// NewCompositeMutator creates a new CompositeMutator.
// chainLength defaults to len(mutators) when zero or out of range.
func NewCompositeMutator(mutators []core.Mutator, chainLength int, randomOrder bool) *CompositeMutator {
	if chainLength <= 0 || chainLength > len(mutators) {
		chainLength = len(mutators)
	}
	return &CompositeMutator{
		mutators:    mutators,
		chainLength: chainLength,
		randomOrder: randomOrder,
	}
}

// Mutate applies the chain. The result records the original parent and
// advances the generation by one, whatever the chain length.
func (c *CompositeMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	if len(c.mutators) == 0 {
		return nil, fmt.Errorf("composite mutator has no mutators")
	}

	order := rand.Perm(len(c.mutators))
	if !c.randomOrder {
		for i := range order {
			order[i] = i
		}
	}

	current := parent
	for _, idx := range order[:c.chainLength] {
		next, err := c.mutators[idx].Mutate(current)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.mutators[idx].Name(), err)
		}
		current = next
	}

	current.ParentID = parent.ID
	current.Generation = parent.Generation + 1
	return current, nil
}

// Name lists the chained mutators
func (c *CompositeMutator) Name() string {
	names := make([]string, len(c.mutators))
	for i, m := range c.mutators {
		names[i] = m.Name()
	}
	return "Composite(" + strings.Join(names, ",") + ")"
}

// NewDefaultMutator returns the engine used when no other is configured:
// two randomly chosen byte-level strategies per candidate
func NewDefaultMutator(pool Pool, mutationRate float64) *CompositeMutator {
	return NewCompositeMutator([]core.Mutator{
		NewBitFlipMutator(mutationRate),
		NewByteSubstitutionMutator(mutationRate),
		NewArithmeticMutator(mutationRate),
		NewInterestingValueMutator(),
		NewCrossOverMutator(pool),
	}, 2, true)
}
