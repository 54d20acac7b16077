package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fumin/qspace"
)

const (
	fnameSnapshot = "lookup.msgpack"
)

// snapshot is the lookup of a run in a form that can be reloaded without diagonalizing again.
type snapshot struct {
	Subsystems []string  `msgpack:"subsystems"`
	Dimensions []int     `msgpack:"dimensions"`
	Energies   []float64 `msgpack:"energies"`
	Bare       [][]int   `msgpack:"bare"`
	Overlap    []float64 `msgpack:"overlap"`
}

func newSnapshot(hs *qspace.HilbertSpace) (snapshot, error) {
	var s snapshot
	for _, sub := range hs.Subsystems() {
		s.Subsystems = append(s.Subsystems, sub.ID())
		s.Dimensions = append(s.Dimensions, sub.Dimension())
	}

	var err error
	s.Energies, err = hs.Energies()
	if err != nil {
		return snapshot{}, errors.Wrap(err, "")
	}
	for j := range s.Energies {
		bare, err := hs.BareIndex(j)
		if err != nil {
			return snapshot{}, errors.Wrap(err, "")
		}
		overlap, err := hs.Overlap(j)
		if err != nil {
			return snapshot{}, errors.Wrap(err, "")
		}
		s.Bare = append(s.Bare, bare)
		s.Overlap = append(s.Overlap, overlap)
	}
	return s, nil
}

// writeCSV writes dressed,energy,bare,overlap rows.
func (s snapshot) writeCSV(out io.Writer) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"dressed", "energy", "bare", "overlap"}); err != nil {
		return errors.Wrap(err, "")
	}
	for j, e := range s.Energies {
		row := []string{strconv.Itoa(j), strconv.FormatFloat(e, 'f', 6, 64), fmt.Sprint(s.Bare[j]), strconv.FormatFloat(s.Overlap[j], 'f', 6, 64)}
		if err := w.Write(row); err != nil {
			return errors.Wrap(err, "")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func writeSnapshot(dir string, s snapshot) error {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameSnapshot), b, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func readSnapshot(dir string) (snapshot, error) {
	b, err := os.ReadFile(filepath.Join(dir, fnameSnapshot))
	if err != nil {
		return snapshot{}, errors.Wrap(err, "")
	}
	var s snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return snapshot{}, errors.Wrap(err, "")
	}
	return s, nil
}

// denseBytes estimates the memory of diagonalizing a dimension x dimension Hamiltonian in full,
// through its real symmetric embedding of twice the size.
func denseBytes(dimension int) uint64 {
	n := uint64(2 * dimension)
	// The embedding, its eigenvectors and the workspace of EigenSym.
	return 3 * n * n * 8
}

// checkMemory warns when a dense diagonalization is unlikely to fit in the available memory.
func checkMemory(dimension int, log zerolog.Logger) {
	need := denseBytes(dimension)
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("failed to get memory statistics")
		return
	}
	ev := log.Debug()
	if need > vm.Available {
		ev = log.Warn()
	}
	ev.Int("dimension", dimension).Uint64("need", need).Uint64("available", vm.Available).Msg("dense diagonalization memory")
}
