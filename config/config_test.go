package config

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fumin/qspace"
)

const jaynesCummings = `
max_dimension: 4096
subsystems:
  - id: osc1
    type: oscillator
    frequency: 4.284
    dimension: 4
  - id: q
    type: qubit
    frequency: 5
interactions:
  - g: 0.1
    operators:
      - {subsystem: osc1, operator: creation}
      - {subsystem: q, operator: sigmam}
    add_hc: true
  - expr: "g * a.dag() * a * sz"
    bind:
      a: {subsystem: osc1, operator: annihilation}
      sz: {subsystem: q, operator: sigmaz}
    constants: {g: 0.01}
`

func TestBuild(t *testing.T) {
	t.Parallel()
	sys, err := Parse([]byte(jaynesCummings))
	require.NoError(t, err)
	require.Len(t, sys.Subsystems, 2)
	require.Equal(t, Complex(0.1), sys.Interactions[0].G)
	require.Equal(t, Complex(0.01), sys.Interactions[1].Constants["g"])

	hs, err := sys.Build(zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 8, hs.Dimension())
	require.Len(t, hs.Interactions(), 2)

	h, err := hs.Hamiltonian()
	require.NoError(t, err)
	// |1, 0> couples to |0, 1> through a† σ-.
	require.InDelta(t, 0.1, real(h.At(1, 2)), 1e-12)
	require.InDelta(t, 0.1, real(h.At(2, 1)), 1e-12)
	// |1, 1> carries the dispersive shift 0.01 * 1 * (+1).
	bare, err := hs.BareEnergy(qspace.BareIndex{1, 1})
	require.NoError(t, err)
	require.InDelta(t, bare+0.01, real(h.At(3, 3)), 1e-12)
}

func TestDemo(t *testing.T) {
	t.Parallel()
	hs, err := Demo().Build(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, hs.GenerateLookup())

	bare, err := hs.BareIndex(1)
	require.NoError(t, err)
	require.Equal(t, qspace.BareIndex{1, 0}, bare)
	e, err := hs.EnergyByBareIndex(qspace.BareIndex{1, 0})
	require.NoError(t, err)
	require.InDelta(t, 4.280419, e, 1e-6)

	b, err := Demo().Marshal()
	require.NoError(t, err)
	sys, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, Demo(), sys)
}

func TestComplex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s string
		c Complex
	}{
		{s: `g: 0.5`, c: 0.5},
		{s: `g: -2`, c: -2},
		{s: `g: "0.1+0.2j"`, c: Complex(complex(0.1, 0.2))},
		{s: `g: 3j`, c: Complex(complex(0, 3))},
	}
	for _, test := range tests {
		t.Run(test.s, func(t *testing.T) {
			sys, err := Parse([]byte("interactions:\n  - " + test.s + "\n"))
			require.NoError(t, err)
			require.Equal(t, test.c, sys.Interactions[0].G)
		})
	}

	for _, s := range []string{`g: [1]`, `g: abc`} {
		_, err := Parse([]byte("interactions:\n  - " + s + "\n"))
		require.Error(t, err, s)
		require.True(t, errors.Is(err, ErrConfig), "%s: %+v", s, err)
	}
}

func TestSpectrum(t *testing.T) {
	t.Parallel()
	sys, err := Parse([]byte(`
subsystems:
  - id: tls
    type: spectrum
    energies: [0, 1]
    operators:
      x: [[0, 1], [1, 0]]
      y: [[0, "-1j"], ["1j", 0]]
  - id: q
    type: qubit
    frequency: 1
interactions:
  - expr: "g * x * sx"
    bind:
      x: {subsystem: tls, operator: x}
      sx: {subsystem: q, operator: sigmax}
    constants: {g: 0.2}
  - g: 0.3
    operators:
      - {subsystem: tls, operator: y}
`))
	require.NoError(t, err)
	require.Equal(t, Complex(complex(0, 1)), sys.Subsystems[0].Operators["y"][1][0])

	hs, err := sys.Build(zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 4, hs.Dimension())
	h, err := hs.Hamiltonian()
	require.NoError(t, err)
	require.InDelta(t, 0.2, real(h.At(0, 3)), 1e-12)
	require.InDelta(t, 0.2, real(h.At(1, 2)), 1e-12)
	// 0.3 y ⊗ 1 maps |0, 0> to |1, 0>.
	require.InDelta(t, -0.3, imag(h.At(0, 2)), 1e-12)
	require.InDelta(t, 0.3, imag(h.At(2, 0)), 1e-12)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "unknown type",
			yaml: `
subsystems:
  - {id: t, type: transmon}
`,
			err: ErrConfig,
		},
		{
			name: "empty id",
			yaml: `
subsystems:
  - {type: qubit, frequency: 1}
`,
			err: ErrConfig,
		},
		{
			name: "unknown diagonalizer",
			yaml: `
diagonalizer: lanczos
subsystems:
  - {id: q, type: qubit, frequency: 1}
`,
			err: ErrConfig,
		},
		{
			name: "unknown subsystem",
			yaml: `
subsystems:
  - {id: q, type: qubit, frequency: 1}
interactions:
  - g: 1
    operators:
      - {subsystem: nope, operator: sigmax}
`,
			err: qspace.ErrUnknownSubsystem,
		},
		{
			name: "unknown operator",
			yaml: `
subsystems:
  - {id: q, type: qubit, frequency: 1}
interactions:
  - g: 1
    operators:
      - {subsystem: q, operator: creation}
`,
			err: qspace.ErrUnknownOperator,
		},
		{
			name: "ragged operator",
			yaml: `
subsystems:
  - id: tls
    type: spectrum
    energies: [0, 1]
    operators:
      x: [[0, 1], [1]]
`,
			err: qspace.ErrDimensionMismatch,
		},
		{
			name: "empty operator",
			yaml: `
subsystems:
  - id: tls
    type: spectrum
    energies: [0, 1]
    operators:
      a: []
`,
			err: qspace.ErrDimensionMismatch,
		},
		{
			name: "operator size",
			yaml: `
subsystems:
  - id: tls
    type: spectrum
    energies: [0, 1, 2]
    operators:
      x: [[0, 1], [1, 0]]
`,
			err: qspace.ErrDimensionMismatch,
		},
		{
			name: "limit",
			yaml: `
max_dimension: 10
subsystems:
  - {id: a, type: oscillator, frequency: 1, dimension: 4}
  - {id: b, type: oscillator, frequency: 2, dimension: 4}
`,
			err: qspace.ErrConfigurationLimit,
		},
		{
			name: "bad expression",
			yaml: `
subsystems:
  - {id: q, type: qubit, frequency: 1}
interactions:
  - expr: "g * sx"
    bind:
      sx: {subsystem: q, operator: sigmax}
`,
			err: qspace.ErrExpression,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			sys, err := Parse([]byte(test.yaml))
			require.NoError(t, err)
			_, err = sys.Build(zerolog.Nop())
			require.Error(t, err)
			require.True(t, errors.Is(err, test.err), "%+v", err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("QSPACE_RUN_DIR", "/tmp/qspace")
	t.Setenv("QSPACE_LOG_LEVEL", "debug")
	t.Setenv("QSPACE_LOG_PRETTY", "false")
	t.Setenv("QSPACE_MAX_DIMENSION", "not a number")

	env := LoadEnv()
	require.Equal(t, "/tmp/qspace", env.RunDir)
	require.Equal(t, "debug", env.LogLevel)
	require.False(t, env.LogPretty)
	require.Equal(t, qspace.DefaultMaxDimension, env.MaxDimension)

	t.Setenv("QSPACE_MAX_DIMENSION", "64")
	require.Equal(t, 64, LoadEnv().MaxDimension)
}
