package modules

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytecodeModule(t *testing.T, code []byte) []byte {
	t.Helper()

	container := map[string]string{
		"format":   bytecodeFormat,
		"target":   "wasm32",
		"bytecode": base64.StdEncoding.EncodeToString(code),
	}

	data, err := json.Marshal(container)
	require.NoError(t, err)

	return data
}

func TestRegisterPlainSource(t *testing.T) {
	r := NewRuntime(quietLogger())

	require.NoError(t, r.Register("physics", []byte("plain source")))

	assert.Equal(t, []string{"physics"}, r.LoadedModules())
	assert.False(t, r.IsBytecode("physics"))
}

func TestRegisterBytecodeContainer(t *testing.T) {
	r := NewRuntime(quietLogger())

	require.NoError(t, r.Register("physics",
		bytecodeModule(t, []byte{0x00, 0x61, 0x73, 0x6d})))

	assert.True(t, r.IsBytecode("physics"))
}

func TestRegisterRejectsEmptyModule(t *testing.T) {
	r := NewRuntime(quietLogger())

	assert.Error(t, r.Register("physics", nil))
	assert.Empty(t, r.LoadedModules())
}

func TestRegisterRejectsCorruptBytecode(t *testing.T) {
	r := NewRuntime(quietLogger())

	corrupt, err := json.Marshal(map[string]string{
		"format":   bytecodeFormat,
		"bytecode": "not base64 !!!",
	})
	require.NoError(t, err)

	assert.Error(t, r.Register("physics", corrupt))
}

func TestInitIsolatesFailures(t *testing.T) {
	r := NewRuntime(quietLogger())

	r.Init(map[string][]byte{
		"good":  []byte("source"),
		"empty": nil,
		"other": []byte("more source"),
	})

	assert.Equal(t, []string{"good", "other"}, r.LoadedModules())
}
