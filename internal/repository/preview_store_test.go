package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreviewKeysAreNamespaced(t *testing.T) {
	store := NewRedisPreviewStore(nil, "coop-import:").(*redisPreviewStore)
	assert.Equal(t, "coop-import:import:preview:abc", store.key("abc"))

	bare := NewRedisPreviewStore(nil, "").(*redisPreviewStore)
	assert.Equal(t, "import:preview:abc", bare.key("abc"))
}
