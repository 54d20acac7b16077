// Package config describes composite systems in YAML and builds them into a qspace.HilbertSpace.
//
// A system file looks like
//
//	max_dimension: 4096
//	subsystems:
//	  - id: osc1
//	    type: oscillator
//	    frequency: 4.284
//	    dimension: 4
//	  - id: q
//	    type: qubit
//	    frequency: 5
//	interactions:
//	  - g: 0.1
//	    operators:
//	      - {subsystem: osc1, operator: creation}
//	      - {subsystem: q, operator: sigmam}
//	    add_hc: true
//	  - expr: "g * a.dag() * a * sz"
//	    bind:
//	      a: {subsystem: osc1, operator: annihilation}
//	      sz: {subsystem: q, operator: sigmaz}
//	    constants: {g: 0.01}
//
// Complex scalars may be written as strings such as "0.1+0.2j".
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fumin/qspace"
	"github.com/fumin/qspace/mat"
)

var (
	ErrConfig = errors.New("invalid configuration")
)

// Subsystem types.
const (
	TypeOscillator = "oscillator"
	TypeQubit      = "qubit"
	TypeSpectrum   = "spectrum"
)

// Diagonalizers.
const (
	DiagonalizerDense   = "dense"
	DiagonalizerArnoldi = "arnoldi"
)

// Complex is a complex number written either as a YAML number or as a string such as "0.1+0.2j".
type Complex complex128

func (c *Complex) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Wrapf(ErrConfig, "line %d: expected a number, got %q", value.Line, value.Value)
	}
	v, err := mat.ParseComplex(value.Value)
	if err != nil {
		return errors.Wrapf(ErrConfig, "line %d: %q: %v", value.Line, value.Value, err)
	}
	*c = Complex(v)
	return nil
}

func (c Complex) MarshalYAML() (interface{}, error) {
	if imag(c) == 0 {
		return real(c), nil
	}
	return mat.FormatNumpy(complex128(c)), nil
}

type System struct {
	MaxDimension int    `yaml:"max_dimension,omitempty"`
	EvalsCount   int    `yaml:"evals_count,omitempty"`
	Diagonalizer string `yaml:"diagonalizer,omitempty"`

	Subsystems   []Subsystem   `yaml:"subsystems"`
	Interactions []Interaction `yaml:"interactions"`
}

type Subsystem struct {
	ID        string  `yaml:"id"`
	Type      string  `yaml:"type"`
	Frequency float64 `yaml:"frequency,omitempty"`
	// Dimension is the truncation of an oscillator.
	Dimension int `yaml:"dimension,omitempty"`

	// Energies and Operators define a spectrum.
	Energies  []float64              `yaml:"energies,omitempty"`
	Operators map[string][][]Complex `yaml:"operators,omitempty"`
}

type OperatorRef struct {
	Subsystem string `yaml:"subsystem"`
	Operator  string `yaml:"operator"`
}

// Interaction is either a direct product of Operators scaled by G, or an expression Expr over the names in Bind and Constants.
type Interaction struct {
	G         Complex       `yaml:"g,omitempty"`
	Operators []OperatorRef `yaml:"operators,omitempty"`

	Expr      string                 `yaml:"expr,omitempty"`
	Bind      map[string]OperatorRef `yaml:"bind,omitempty"`
	Constants map[string]Complex     `yaml:"constants,omitempty"`

	AddHC bool `yaml:"add_hc,omitempty"`
}

func Parse(data []byte) (*System, error) {
	sys := &System{}
	if err := yaml.Unmarshal(data, sys); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return sys, nil
}

func Load(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	sys, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return sys, nil
}

func (s *System) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b, nil
}

// Options returns the HilbertSpace options of s.
func (s *System) Options(log zerolog.Logger) (qspace.Options, error) {
	opt := qspace.NewOptions().Logger(log)
	if s.MaxDimension > 0 {
		opt = opt.MaxDimension(s.MaxDimension)
	}
	if s.EvalsCount > 0 {
		opt = opt.EvalsCount(s.EvalsCount)
	}
	switch s.Diagonalizer {
	case "", DiagonalizerDense:
	case DiagonalizerArnoldi:
		opt = opt.Diagonalizer(mat.ArnoldiDiagonalizer{})
	default:
		return qspace.Options{}, errors.Wrapf(ErrConfig, "unknown diagonalizer %q", s.Diagonalizer)
	}
	return opt, nil
}

// Build returns the HilbertSpace described by s.
func (s *System) Build(log zerolog.Logger) (*qspace.HilbertSpace, error) {
	opt, err := s.Options(log)
	if err != nil {
		return nil, err
	}
	hs, err := qspace.New(nil, opt)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	byID := make(map[string]qspace.Subsystem, len(s.Subsystems))
	for i, sc := range s.Subsystems {
		sub, err := sc.build()
		if err != nil {
			return nil, errors.Wrapf(err, "subsystem %d", i)
		}
		if _, err := hs.Register(sub); err != nil {
			return nil, errors.Wrapf(err, "subsystem %d", i)
		}
		byID[sc.ID] = sub
	}

	ref := func(r OperatorRef) (qspace.OperatorRef, error) {
		sub, ok := byID[r.Subsystem]
		if !ok {
			return qspace.OperatorRef{}, errors.Wrapf(qspace.ErrUnknownSubsystem, "%q", r.Subsystem)
		}
		return qspace.Op(sub, r.Operator), nil
	}
	for i, ic := range s.Interactions {
		var term qspace.InteractionTerm
		switch {
		case ic.Expr != "":
			ops := make(map[string]qspace.OperatorRef, len(ic.Bind))
			for name, r := range ic.Bind {
				if ops[name], err = ref(r); err != nil {
					return nil, errors.Wrapf(err, "interaction %d %q", i, name)
				}
			}
			constants := make(map[string]complex128, len(ic.Constants))
			for name, c := range ic.Constants {
				constants[name] = complex128(c)
			}
			term, err = qspace.NewSymbolicInteraction(ic.Expr, ops, constants, ic.AddHC)
			if err != nil {
				return nil, errors.Wrapf(err, "interaction %d", i)
			}
		default:
			ops := make([]qspace.OperatorRef, 0, len(ic.Operators))
			for _, r := range ic.Operators {
				op, err := ref(r)
				if err != nil {
					return nil, errors.Wrapf(err, "interaction %d", i)
				}
				ops = append(ops, op)
			}
			term = qspace.NewInteraction(complex128(ic.G), ic.AddHC, ops...)
		}
		if err := hs.AddInteraction(term); err != nil {
			return nil, errors.Wrapf(err, "interaction %d", i)
		}
	}
	return hs, nil
}

func (sc Subsystem) build() (qspace.Subsystem, error) {
	if sc.ID == "" {
		return nil, errors.Wrap(ErrConfig, "empty id")
	}
	switch sc.Type {
	case TypeOscillator:
		return qspace.NewOscillator(sc.ID, sc.Frequency, sc.Dimension), nil
	case TypeQubit:
		return qspace.NewQubit(sc.ID, sc.Frequency), nil
	case TypeSpectrum:
		ops := make(map[string]*mat.COO, len(sc.Operators))
		for name, rows := range sc.Operators {
			if len(rows) == 0 || len(rows) != len(sc.Energies) {
				return nil, errors.Wrapf(qspace.ErrDimensionMismatch, "%q operator %q has %d rows, expected %d", sc.ID, name, len(rows), len(sc.Energies))
			}
			dense := make([][]complex128, len(rows))
			for i, row := range rows {
				if len(row) != len(rows) {
					return nil, errors.Wrapf(qspace.ErrDimensionMismatch, "%q operator %q row %d has %d columns, expected %d", sc.ID, name, i, len(row), len(rows))
				}
				dense[i] = make([]complex128, len(row))
				for j, v := range row {
					dense[i][j] = complex128(v)
				}
			}
			ops[name] = mat.M(dense)
		}
		return &qspace.Spectrum{Name: sc.ID, Energies: sc.Energies, Operators: ops}, nil
	default:
		return nil, errors.Wrapf(ErrConfig, "%q has unknown type %q", sc.ID, sc.Type)
	}
}

// Demo returns two oscillators coupled by 0.1 (a1† a2 + h.c.).
func Demo() *System {
	return &System{
		Subsystems: []Subsystem{
			{ID: "osc1", Type: TypeOscillator, Frequency: 4.284, Dimension: 4},
			{ID: "osc2", Type: TypeOscillator, Frequency: 7.073, Dimension: 4},
		},
		Interactions: []Interaction{
			{
				G: 0.1,
				Operators: []OperatorRef{
					{Subsystem: "osc1", Operator: qspace.OpCreation},
					{Subsystem: "osc2", Operator: qspace.OpAnnihilation},
				},
				AddHC: true,
			},
		},
	}
}

// Env holds settings from the environment and an optional .env file.
type Env struct {
	RunDir       string
	LogLevel     string
	LogPretty    bool
	MaxDimension int
}

func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		RunDir:       getEnv("QSPACE_RUN_DIR", "runs"),
		LogLevel:     getEnv("QSPACE_LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("QSPACE_LOG_PRETTY", true),
		MaxDimension: getEnvAsInt("QSPACE_MAX_DIMENSION", qspace.DefaultMaxDimension),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
