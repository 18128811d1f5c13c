package digest

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceDeterminism(t *testing.T) {
	a := Source("body {\n}\n")
	b := Source("body {\n}\n")
	assert.Equal(t, a, b, "Source must be deterministic")
	assert.Len(t, a, 64, "BLAKE3-256 hex is 64 characters")

	_, err := hex.DecodeString(a)
	require.NoError(t, err)
}

func TestSourceChangesWithContent(t *testing.T) {
	assert.NotEqual(t, Source("body {\n}\n"), Source("body {\n}"))
}

func TestSourceNormalizesUnicode(t *testing.T) {
	composed := "café"
	decomposed := "café"
	require.NotEqual(t, composed, decomposed)
	assert.Equal(t, Source(composed), Source(decomposed), "NFC and NFD forms hash the same")
}

func TestValueIsShort(t *testing.T) {
	v := Value("sunny")
	assert.Len(t, v, 16)
	assert.Equal(t, v, Value("sunny"))
	assert.NotEqual(t, v, Value("rainy"))
}

func TestDomainSeparationPreventsCrossTypeCollision(t *testing.T) {
	// The same bytes under different domains hash differently.
	assert.NotEqual(t, Source("x")[:16], Value("x"))
}

func TestSeed(t *testing.T) {
	a1, b1 := Seed(42, "clock", 7)
	a2, b2 := Seed(42, "clock", 7)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.NotEqual(t, a1, b1)

	tests := []struct {
		name   string
		seed   int64
		id     string
		bucket int64
	}{
		{"different seed", 43, "clock", 7},
		{"different node", 42, "clock2", 7},
		{"different bucket", 42, "clock", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := Seed(tt.seed, tt.id, tt.bucket)
			assert.NotEqual(t, a1, a)
		})
	}
}
