package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertexdlt/microwasm/host"
	"github.com/vertexdlt/microwasm/vm"
)

// addModule is "env.add"-calling export "run" : (i32, i32) -> i32,
// exercising the same wiring runRun drives: decode, bind the
// well-known host environment, invoke by name.
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // type: (i32,i32) -> i32

	0x02, 0x0b, 0x01,
	0x03, 'e', 'n', 'v',
	0x03, 'a', 'd', 'd',
	0x00, 0x00,

	0x03, 0x02, 0x01, 0x00,

	0x07, 0x07, 0x01, 0x03, 'r', 'u', 'n', 0x00, 0x01,

	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b,
}

func TestRunEndToEndThroughHostEnvironment(t *testing.T) {
	v, err := vm.New(addModule)
	require.NoError(t, err)

	host.NewEnvironment(&discardWriter{}).Register(v)

	result, err := v.InvokeExport("run", 19, 23)
	require.NoError(t, err)
	require.Equal(t, int32(42), result)
}

func TestRunTrapsOnUnknownExport(t *testing.T) {
	v, err := vm.New(addModule)
	require.NoError(t, err)
	host.NewEnvironment(&discardWriter{}).Register(v)

	_, err = v.InvokeExport("does_not_exist")
	require.Error(t, err)
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }
