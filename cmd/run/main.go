// Command run diagonalizes a composite system described in YAML and writes its Hamiltonian, spectrum and dressed to bare lookup into a fresh run directory.
// With -ising it instead sweeps transverse field Ising lattices and prints their ground state statistics.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/fumin/qspace"
	"github.com/fumin/qspace/config"
	"github.com/fumin/qspace/logger"
	"github.com/fumin/qspace/mat"
)

const (
	fnameSystem        = "system.yaml"
	fnameEigen         = "eig.csv"
	fnameLookup        = "lookup.csv"
	fnameDone          = "done.txt"
	fnameStatistics    = "statistics.txt"
	fnameDiskMatrix    = "hamiltonian.db"
	dirnameHamiltonian = "hamiltonian"
)

var (
	configPath = flag.String("config", "", "system YAML file, the two oscillator demo if empty")
	runDir     = flag.String("d", "", "run directory, QSPACE_RUN_DIR if empty")
	disk       = flag.Bool("disk", false, "export the Hamiltonian through a sqlite database; diagonalization still assembles it in memory")
	evals      = flag.Int("evals", 0, "number of eigenpairs, all if zero")
	ising      = flag.Bool("ising", false, "sweep transverse field Ising lattices")
	maxL       = flag.Int("maxl", 3, "maximum Ising lattice side")
	show       = flag.String("show", "", "print the lookup of a previous run directory")
)

// run solves sys in dir and prints the lookup table to w.
func run(dir string, sys *config.System, onDisk bool, log zerolog.Logger, w io.Writer) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	b, err := sys.Marshal()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, fnameSystem), b, 0644); err != nil {
		return errors.Wrap(err, "")
	}

	hs, err := sys.Build(log)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeHamiltonian(dir, hs, onDisk); err != nil {
		return errors.Wrap(err, "")
	}
	if sys.Diagonalizer != config.DiagonalizerArnoldi {
		checkMemory(hs.Dimension(), log)
	}
	if err := hs.GenerateLookup(); err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeEig(dir, hs); err != nil {
		return errors.Wrap(err, "")
	}
	snap, err := newSnapshot(hs)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeLookup(dir, snap, w); err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeSnapshot(dir, snap); err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.WriteFile(filepath.Join(dir, fnameDone), nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	log.Info().Str("dir", dir).Int("dimension", hs.Dimension()).Msg("solved")
	return nil
}

func writeHamiltonian(dir string, hs *qspace.HilbertSpace, onDisk bool) error {
	hdir := filepath.Join(dir, dirnameHamiltonian)
	if err := os.MkdirAll(hdir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if !onDisk {
		h, err := hs.Hamiltonian()
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := h.WriteCOO(hdir); err != nil {
			return errors.Wrap(err, "")
		}
		return nil
	}

	dm, err := mat.NewDiskMatrix(filepath.Join(dir, fnameDiskMatrix), [][]complex128{{0}})
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer dm.Close()
	if err := hs.HamiltonianInto(dm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := dm.WriteCOO(hdir); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// writeEig writes the energies in the first row, followed by one row per basis state with eigenvectors in columns.
func writeEig(dir string, hs *qspace.HilbertSpace) error {
	energies, err := hs.Energies()
	if err != nil {
		return errors.Wrap(err, "")
	}
	vecs := make([][]complex128, len(energies))
	for j := range energies {
		if vecs[j], err = hs.Eigenvector(j); err != nil {
			return errors.Wrap(err, "")
		}
	}

	fpath := filepath.Join(dir, fnameEigen)
	f, err := os.Create(fpath)
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	row := make([]string, len(energies))
	for j, e := range energies {
		row[j] = strconv.FormatFloat(e, 'f', -1, 64)
	}
	if err1 := w.Write(row); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for i := range hs.Dimension() {
		for j, vec := range vecs {
			row[j] = mat.FormatNumpy(vec[i])
		}
		if err1 := w.Write(row); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

// writeLookup writes the lookup table of s to the lookup file and to out.
func writeLookup(dir string, s snapshot, out io.Writer) error {
	f, err := os.Create(filepath.Join(dir, fnameLookup))
	if err != nil {
		return errors.Wrap(err, "")
	}
	err = s.writeCSV(io.MultiWriter(f, out))
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

type Statistics struct {
	n [2]int
	h float64
	qspace.IsingStatistics
}

func getStatistics(dir string, hs *qspace.HilbertSpace, n [2]int) error {
	stats, err := qspace.GetIsingStatistics(hs, n)
	if err != nil {
		return errors.Wrap(err, "")
	}

	b, err := json.Marshal(stats)
	if err != nil {
		return errors.Wrap(err, "")
	}
	mPath := filepath.Join(dir, fnameStatistics)
	if err := os.WriteFile(mPath, b, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func solveIsing(dir string, n [2]int, h float64, opt qspace.Options) error {
	donePath := filepath.Join(dir, fnameDone)
	if _, err := os.Stat(donePath); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	hdir := filepath.Join(dir, dirnameHamiltonian)
	if err := os.MkdirAll(hdir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := qspace.WriteTransverseFieldIsing(hdir, n, h); err != nil {
		return errors.Wrap(err, "")
	}

	hs, err := qspace.TransverseFieldIsing(n, h, opt)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := hs.GenerateLookup(); err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeEig(dir, hs); err != nil {
		return errors.Wrap(err, "")
	}
	if err := getStatistics(dir, hs, n); err != nil {
		return errors.Wrap(err, "")
	}

	if err := os.WriteFile(donePath, nil, 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func gather(dir string) ([]Statistics, error) {
	stats := make([]Statistics, 0)
	nEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for _, nent := range nEntries {
		// Parse for lattice size.
		nstr := strings.Split(nent.Name(), "x")
		if len(nstr) != 2 {
			return nil, errors.Errorf("%#v", nent.Name())
		}
		var n [2]int
		for i, s := range nstr {
			n[i], err = strconv.Atoi(s)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%#v", nent.Name()))
			}
		}

		ndir := filepath.Join(dir, nent.Name())
		hEntries, err := os.ReadDir(ndir)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%#v", nent.Name()))
		}
		for _, hent := range hEntries {
			h, err := strconv.ParseFloat(hent.Name(), 64)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%#v %#v", nent.Name(), hent.Name()))
			}

			hdir := filepath.Join(ndir, hent.Name())
			sb, err := os.ReadFile(filepath.Join(hdir, fnameStatistics))
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%#v %#v", nent.Name(), hent.Name()))
			}
			s := Statistics{n: n, h: h}
			if err := json.Unmarshal(sb, &s); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%#v %#v", nent.Name(), hent.Name()))
			}
			stats = append(stats, s)
		}
	}
	return stats, nil
}

// isingConfigs returns chains of i*i spins and i x i squares for i up to maxL,
// with fields spread logarithmically around the critical point of each dimension.
func isingConfigs(maxL int) []Statistics {
	type dimtc struct {
		dimension int
		tcGuess   float64
	}
	appendConfigs := func(configs []Statistics, c dimtc) []Statistics {
		tcLog := math.Log10(c.tcGuess)
		for i := 2; i <= maxL; i++ {
			n := [2]int{i * i, 1}
			if c.dimension == 2 {
				n = [2]int{i, i}
			}

			hLogs := []float64{-2, -1.5, -1, 1, 1.5, 2}
			for _, hl := range []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5} {
				hLogs = append(hLogs, tcLog+hl)
				hLogs = append(hLogs, tcLog-hl)
			}

			for _, hl := range hLogs {
				configs = append(configs, Statistics{n: n, h: math.Pow(10, hl)})
			}
		}
		return configs
	}

	configs := make([]Statistics, 0)
	configs = appendConfigs(configs, dimtc{dimension: 1, tcGuess: 1})
	configs = appendConfigs(configs, dimtc{dimension: 2, tcGuess: 2})
	return configs
}

// sweepIsing solves every configuration of isingConfigs under dir, reporting progress to progress, and prints the gathered statistics to w.
func sweepIsing(dir string, maxL, maxDimension int, log zerolog.Logger, w, progress io.Writer) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	opt := qspace.NewOptions().MaxDimension(maxDimension).Logger(log)

	configs := isingConfigs(maxL)
	bar := progressbar.NewOptions(len(configs),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("ising"),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(progress, "\n") }),
	)

	// Solve for the hamiltonian.
	for _, c := range configs {
		nstr := fmt.Sprintf("%dx%d", c.n[0], c.n[1])
		hstr := fmt.Sprintf("%f", c.h)
		cdir := filepath.Join(dir, nstr, hstr)

		if err := solveIsing(cdir, c.n, c.h, opt); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d %f", c.n, c.h))
		}
		log.Debug().Ints("n", c.n[:]).Float64("h", c.h).Msg("solved")
		if err := bar.Add(1); err != nil {
			return errors.Wrap(err, "")
		}
	}

	// Gather results and print them.
	stats, err := gather(dir)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "n0,n1,h,e0,e1,e2,m,binder\n")
	for _, s := range stats {
		fmt.Fprintf(w, "%d,%d,%f,%f,%f,%f,%f,%f\n", s.n[0], s.n[1], s.h, s.EigenValue[0], s.EigenValue[1], s.EigenValue[2], s.Magnetization, s.BinderCumulant)
	}
	return nil
}

func main() {
	flag.Parse()
	env := config.LoadEnv()
	log := logger.New(logger.Config{Level: env.LogLevel, Pretty: env.LogPretty})

	if err := mainWithErr(env, log); err != nil {
		log.Fatal().Msgf("%+v", err)
	}
}

func mainWithErr(env config.Env, log zerolog.Logger) error {
	dir := *runDir
	if dir == "" {
		dir = env.RunDir
	}
	if *show != "" {
		snap, err := readSnapshot(*show)
		if err != nil {
			return errors.Wrap(err, "")
		}
		return snap.writeCSV(os.Stdout)
	}
	if *ising {
		return sweepIsing(filepath.Join(dir, "ising"), *maxL, env.MaxDimension, log, os.Stdout, os.Stderr)
	}

	sys := config.Demo()
	if *configPath != "" {
		var err error
		sys, err = config.Load(*configPath)
		if err != nil {
			return errors.Wrap(err, "")
		}
	}
	if sys.MaxDimension == 0 {
		sys.MaxDimension = env.MaxDimension
	}
	if *evals > 0 {
		sys.EvalsCount = *evals
	}

	id := uuid.NewString()
	return run(filepath.Join(dir, id), sys, *disk, log.With().Str("run", id).Logger(), os.Stdout)
}
