/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: mutators.go
Description: Byte-level mutation strategies used as the default mutation engine. Implements
bit flipping, byte substitution, arithmetic mutation of little-endian integers, interesting
value insertion and corpus crossover. Every mutator derives a new corpus entry and never
modifies its parent.
*/

package strategies

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/simfuzz/pkg/core"
)

// derive builds the child entry for mutated data
func derive(parent *core.CorpusEntry, data []byte) *core.CorpusEntry {
	return &core.CorpusEntry{
		ID:         uuid.New().String(),
		Data:       data,
		ParentID:   parent.ID,
		Generation: parent.Generation + 1,
		Priority:   parent.Priority,
		CreatedAt:  time.Now(),
	}
}

// cloneData copies the parent's bytes. Empty inputs get one random byte so
// every mutator has something to work on.
func cloneData(parent *core.CorpusEntry) []byte {
	if len(parent.Data) == 0 {
		return []byte{byte(rand.Intn(256))}
	}
	data := make([]byte, len(parent.Data))
	copy(data, parent.Data)
	return data
}

// BitFlipMutator flips individual bits for fine-grained mutations
type BitFlipMutator struct {
	mutationRate float64 // Probability of mutation per bit
}

// NewBitFlipMutator creates a new bit flip mutator
func NewBitFlipMutator(mutationRate float64) *BitFlipMutator {
	return &BitFlipMutator{mutationRate: mutationRate}
}

// Mutate flips bits of the parent at the mutation rate, and at least one bit
func (m *BitFlipMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	data := cloneData(parent)
	flipped := false
	for i := 0; i < len(data)*8; i++ {
		if rand.Float64() < m.mutationRate {
			data[i/8] ^= 1 << (i % 8)
			flipped = true
		}
	}
	if !flipped {
		i := rand.Intn(len(data) * 8)
		data[i/8] ^= 1 << (i % 8)
	}
	return derive(parent, data), nil
}

// Name returns the name of this mutator
func (m *BitFlipMutator) Name() string { return "BitFlipMutator" }

// ByteSubstitutionMutator replaces bytes with random values
type ByteSubstitutionMutator struct {
	mutationRate float64 // Probability of mutation per byte
}

// NewByteSubstitutionMutator creates a new byte substitution mutator
func NewByteSubstitutionMutator(mutationRate float64) *ByteSubstitutionMutator {
	return &ByteSubstitutionMutator{mutationRate: mutationRate}
}

// Mutate substitutes bytes at the mutation rate, and at least one byte
func (m *ByteSubstitutionMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	data := cloneData(parent)
	substituted := false
	for i := range data {
		if rand.Float64() < m.mutationRate {
			data[i] = byte(rand.Intn(256))
			substituted = true
		}
	}
	if !substituted {
		data[rand.Intn(len(data))] = byte(rand.Intn(256))
	}
	return derive(parent, data), nil
}

// Name returns the name of this mutator
func (m *ByteSubstitutionMutator) Name() string { return "ByteSubstitutionMutator" }

// ArithmeticMutator adds small deltas to little-endian 32-bit words
type ArithmeticMutator struct {
	mutationRate float64
}

// NewArithmeticMutator creates a new arithmetic mutator
func NewArithmeticMutator(mutationRate float64) *ArithmeticMutator {
	return &ArithmeticMutator{mutationRate: mutationRate}
}

var arithmeticOps = []func(uint32) uint32{
	func(x uint32) uint32 { return x + 1 },
	func(x uint32) uint32 { return x - 1 },
	func(x uint32) uint32 { return x << 1 },
	func(x uint32) uint32 { return x >> 1 },
	func(x uint32) uint32 { return x ^ 0x7FFFFFFF },
	func(x uint32) uint32 { return x + 0x1000 },
	func(x uint32) uint32 { return x - 0x1000 },
}

// Mutate rewrites words in place; inputs shorter than a word fall back to byte deltas
func (m *ArithmeticMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	data := cloneData(parent)
	if len(data) < 4 {
		i := rand.Intn(len(data))
		data[i] += byte(rand.Intn(35) - 17)
		return derive(parent, data), nil
	}

	changed := false
	for i := 0; i+4 <= len(data); i++ {
		if rand.Float64() < m.mutationRate {
			m.apply(data[i : i+4])
			changed = true
		}
	}
	if !changed {
		i := rand.Intn(len(data) - 3)
		m.apply(data[i : i+4])
	}
	return derive(parent, data), nil
}

func (m *ArithmeticMutator) apply(word []byte) {
	v := binary.LittleEndian.Uint32(word)
	binary.LittleEndian.PutUint32(word, arithmeticOps[rand.Intn(len(arithmeticOps))](v))
}

// Name returns the name of this mutator
func (m *ArithmeticMutator) Name() string { return "ArithmeticMutator" }

// InterestingValueMutator overwrites a word with a boundary value that tends to
// reach fault paths in firmware and drivers
type InterestingValueMutator struct{}

var interestingValues = []uint64{
	0, 1, 0x7F, 0x80, 0xFF, 0x100, 0x7FFF, 0x8000, 0xFFFF,
	0x7FFFFFFF, 0x80000000, 0xFFFFFFFF, 0x7FFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF,
}

// NewInterestingValueMutator creates a new interesting value mutator
func NewInterestingValueMutator() *InterestingValueMutator {
	return &InterestingValueMutator{}
}

// Mutate writes one interesting value at a random offset, truncated to fit
func (m *InterestingValueMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	data := cloneData(parent)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], interestingValues[rand.Intn(len(interestingValues))])

	widths := []int{1, 2, 4, 8}
	width := widths[rand.Intn(len(widths))]
	if width > len(data) {
		width = len(data)
	}
	offset := rand.Intn(len(data) - width + 1)
	copy(data[offset:offset+width], buf[:width])
	return derive(parent, data), nil
}

// Name returns the name of this mutator
func (m *InterestingValueMutator) Name() string { return "InterestingValueMutator" }

// Pool exposes the corpus to mutators that combine entries
type Pool interface {
	Entries() []*core.CorpusEntry
}

// CrossOverMutator splices the head of the parent onto the tail of another corpus entry
type CrossOverMutator struct {
	pool Pool
}

// NewCrossOverMutator creates a crossover mutator drawing partners from pool
func NewCrossOverMutator(pool Pool) *CrossOverMutator {
	return &CrossOverMutator{pool: pool}
}

// Mutate splices with a random partner. Without a usable partner the parent's
// halves are swapped instead.
func (m *CrossOverMutator) Mutate(parent *core.CorpusEntry) (*core.CorpusEntry, error) {
	head := cloneData(parent)

	var partner []byte
	if m.pool != nil {
		entries := m.pool.Entries()
		if len(entries) > 0 {
			other := entries[rand.Intn(len(entries))]
			if other.ID != parent.ID && len(other.Data) > 0 {
				partner = other.Data
			}
		}
	}

	if partner == nil {
		split := rand.Intn(len(head))
		data := make([]byte, 0, len(head))
		data = append(data, head[split:]...)
		data = append(data, head[:split]...)
		return derive(parent, data), nil
	}

	cut := rand.Intn(len(head)) + 1
	at := rand.Intn(len(partner))
	data := make([]byte, 0, cut+len(partner)-at)
	data = append(data, head[:cut]...)
	data = append(data, partner[at:]...)
	return derive(parent, data), nil
}

// Name returns the name of this mutator
func (m *CrossOverMutator) Name() string { return "CrossOverMutator" }
