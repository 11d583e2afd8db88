package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceString(t *testing.T) {
	assert.Equal(t, "cpu", None.String())
	assert.Equal(t, "cuda:0", Device(0).String())
	assert.Equal(t, "cuda:3", Device(3).String())
}

func TestParseSmiOutput(t *testing.T) {
	output := "0, NVIDIA A100-SXM4-40GB, 40960\n1, NVIDIA A100-SXM4-40GB, 40960\n"

	gpus, err := parseSmiOutput(output)
	require.NoError(t, err)
	require.Len(t, gpus, 2)
	assert.Equal(t, 0, gpus[0].Ordinal)
	assert.Equal(t, "NVIDIA A100-SXM4-40GB", gpus[0].Name)
	assert.Equal(t, uint64(40960), gpus[0].VRAMTotalMB)
	assert.Equal(t, 1, gpus[1].Ordinal)
}

func TestParseSmiOutputMalformed(t *testing.T) {
	_, err := parseSmiOutput("not, csv\n")
	require.Error(t, err)
}

func TestAssignConfiguredIDsWin(t *testing.T) {
	devs, err := Assign(2, []int{3, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []Device{Device(3), Device(1)}, devs)
}

func TestAssignFromDetected(t *testing.T) {
	detected := []Info{{Ordinal: 0}, {Ordinal: 1}, {Ordinal: 2}}

	devs, err := Assign(2, nil, detected)
	require.NoError(t, err)
	assert.Equal(t, []Device{Device(0), Device(1)}, devs)
}

func TestAssignTooFewDetected(t *testing.T) {
	_, err := Assign(2, nil, []Info{{Ordinal: 0}})
	require.Error(t, err)
}

func TestAssignZeroWorldSize(t *testing.T) {
	devs, err := Assign(0, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, devs)
}
