package syntax_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declmap/declmap/syntax"
)

func TestFingerprint(t *testing.T) {
	body := []byte("id = Column(Integer, primary_key=True)")

	first, err := syntax.Fingerprint(body)
	require.NoError(t, err)
	second, err := syntax.Fingerprint(body)
	require.NoError(t, err)
	assert.Equal(t, first, second, "fingerprint must be deterministic")
	assert.NotZero(t, first)

	changed, err := syntax.Fingerprint([]byte("id = Column(Integer)"))
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}
