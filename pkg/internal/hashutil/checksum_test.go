package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("Hello World!")
const helloWorldDigest = "7f83b1657ff1fc53b92dc18148a1d65dfc2d4b1fa3d677284addd200126d9069"

func TestCalculateFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hello World!"), 0644))

	sum, err := CalculateFileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+helloWorldDigest, sum)
}

func TestCalculateFileChecksumMissingFile(t *testing.T) {
	_, err := CalculateFileChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, os.IsNotExist(err))
}

func TestChecksumVariantsAgree(t *testing.T) {
	data := []byte("Hello World!")

	fromReader, err := CalculateReaderChecksum(strings.NewReader(string(data)))
	require.NoError(t, err)

	assert.Equal(t, CalculateChecksum(data), fromReader)
	assert.Equal(t, FromHex(helloWorldDigest), fromReader)
}
