package cachetypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/buildcached/pkg/hash"
)

func TestDeterminismStrictlyDominates(t *testing.T) {
	now := time.Now()

	assert.True(t, Determinism{Kind: DeterminismTool}.StrictlyDominates(Determinism{Kind: DeterminismNone}, now))
	assert.False(t, Determinism{Kind: DeterminismNone}.StrictlyDominates(Determinism{Kind: DeterminismTool}, now))
	assert.False(t, Determinism{Kind: DeterminismTool}.StrictlyDominates(Determinism{Kind: DeterminismTool}, now))
}

func TestDeterminismCacheSameGUIDRefreshDominates(t *testing.T) {
	now := time.Now()
	old := Determinism{Kind: DeterminismCache, Cache: "guid-a", Expiry: now.Add(time.Hour)}
	fresh := Determinism{Kind: DeterminismCache, Cache: "guid-a", Expiry: now.Add(2 * time.Hour)}

	assert.True(t, fresh.StrictlyDominates(old, now), "a refresh from the same cache GUID must dominate its own prior claim")
}

func TestDeterminismExpiredCacheClaimDominatesNothing(t *testing.T) {
	now := time.Now()
	expired := Determinism{Kind: DeterminismCache, Cache: "guid-a", Expiry: now.Add(-time.Minute)}

	assert.False(t, expired.StrictlyDominates(Determinism{Kind: DeterminismNone}, now))
}

func TestContentHashListWithDeterminismEqual(t *testing.T) {
	h1 := hash.ContentHash{Type: hash.SHA256, Bytes: []byte{1, 2, 3}}
	h2 := hash.ContentHash{Type: hash.SHA256, Bytes: []byte{4, 5, 6}}

	a := ContentHashListWithDeterminism{Hashes: []hash.ContentHash{h1, h2}}
	b := ContentHashListWithDeterminism{Hashes: []hash.ContentHash{h1, h2}, Determinism: Determinism{Kind: DeterminismTool}}
	c := ContentHashListWithDeterminism{Hashes: []hash.ContentHash{h2, h1}}

	assert.True(t, a.Equal(b), "Equal ignores determinism")
	assert.False(t, a.Equal(c), "order matters")
}
