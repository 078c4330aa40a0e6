package coreasic

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cgminer-rs/cgominer/work"
)

// simBatchSize bounds how many nonces one read-result poll searches,
// so a single SPITransfer call never blocks the caller for long.
const simBatchSize = 50_000

type foundShare struct {
	nonce uint32
	hash  [32]byte
}

type simChainState struct {
	mu sync.Mutex

	poweredOn bool
	hasWork   bool
	header    [work.HeaderSize]byte
	target    [work.TargetSize]byte
	nonce     uint32
	found     *foundShare
}

// SimulatedHardware stands in for the vendor SPI-level protocol: a
// deterministic software nonce search per chain replaces the chip's
// silicon search, while the power/reset/transfer lifecycle a concrete
// vendor HardwareInterface would expose stays the same shape.
type SimulatedHardware struct {
	mu     sync.Mutex
	chains map[uint8]*simChainState
}

// NewSimulatedHardware builds an empty simulated chain set; chains are
// created lazily on first use.
func NewSimulatedHardware() *SimulatedHardware {
	return &SimulatedHardware{chains: make(map[uint8]*simChainState)}
}

func (s *SimulatedHardware) chainState(id uint8) *simChainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.chains[id]
	if !ok {
		cs = &simChainState{}
		s.chains[id] = cs
	}
	return cs
}

func (s *SimulatedHardware) PowerOnChain(_ context.Context, chainID uint8) error {
	cs := s.chainState(chainID)
	cs.mu.Lock()
	cs.poweredOn = true
	cs.mu.Unlock()
	return nil
}

func (s *SimulatedHardware) PowerOffChain(_ context.Context, chainID uint8) error {
	cs := s.chainState(chainID)
	cs.mu.Lock()
	cs.poweredOn = false
	cs.mu.Unlock()
	return nil
}

func (s *SimulatedHardware) ResetChain(_ context.Context, chainID uint8) error {
	cs := s.chainState(chainID)
	cs.mu.Lock()
	cs.hasWork = false
	cs.found = nil
	cs.nonce = 0
	cs.mu.Unlock()
	return nil
}

// SPITransfer dispatches on the framed command: a work frame (header
// plus target) loads new work and resets the nonce cursor; the 4-byte
// read-result command advances the simulated search by one bounded
// batch and reports a share if the search crosses the target within
// that batch.
func (s *SimulatedHardware) SPITransfer(_ context.Context, chainID uint8, data []byte) ([]byte, error) {
	cs := s.chainState(chainID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.poweredOn {
		return nil, fmt.Errorf("coreasic: chain %d not powered on", chainID)
	}

	switch {
	case len(data) >= work.HeaderSize+work.TargetSize:
		copy(cs.header[:], data[:work.HeaderSize])
		copy(cs.target[:], data[work.HeaderSize:work.HeaderSize+work.TargetSize])
		cs.hasWork = true
		cs.nonce = 0
		cs.found = nil
		return []byte{frameMarkerA, frameMarkerB, 0x00, 0x00}, nil

	case len(data) == 4 && data[0] == frameMarkerB && data[1] == frameMarkerA && data[2] == frameCmdReadResult:
		return s.pollResultLocked(cs), nil

	default:
		return nil, fmt.Errorf("coreasic: chain %d unrecognized frame", chainID)
	}
}

func (s *SimulatedHardware) pollResultLocked(cs *simChainState) []byte {
	if !cs.hasWork {
		return []byte{0x00, 0x00, 0x00, 0x00}
	}

	if cs.found == nil {
		for i := 0; i < simBatchSize; i++ {
			header := cs.header
			binary.LittleEndian.PutUint32(header[76:80], cs.nonce)
			hash := work.DoubleSHA256(header[:])
			if work.HashMeetsTarget(hash, cs.target) {
				found := foundShare{nonce: cs.nonce, hash: hash}
				cs.found = &found
				cs.nonce++
				break
			}
			prev := cs.nonce
			cs.nonce++
			if cs.nonce < prev {
				break // nonce space exhausted for this work
			}
		}
	}

	if cs.found == nil {
		return []byte{0x00, 0x00, 0x00, 0x00}
	}

	out := make([]byte, 8, 40)
	out[0], out[1], out[2], out[3] = frameMarkerA, frameMarkerB, frameResultFound, 0x00
	binary.LittleEndian.PutUint32(out[4:8], cs.found.nonce)
	out = append(out, cs.found.hash[:]...)
	cs.found = nil
	return out
}
