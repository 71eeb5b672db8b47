package progression

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbis/livesvc/livesvc/async"
	"github.com/orbis/livesvc/livesvc/entitlements"
)

type lookupRecorder struct {
	scope    entitlements.Scope
	serverID string
	key      string
}

func (r *lookupRecorder) Has(_ uuid.UUID, scope entitlements.Scope, serverID, key string) *async.Future[bool] {
	r.scope, r.serverID, r.key = scope, serverID, key
	return async.Resolved(true)
}

func TestPremiumResolverScopes(t *testing.T) {
	tests := []struct {
		name       string
		scope, key string
		wantScope  entitlements.Scope
		wantServer string
		wantKey    string
	}{
		{"server", "SERVER", "vip", entitlements.ScopeServer, "s1", "vip"},
		{"network", "network", "", entitlements.ScopeNetwork, "", DefaultPremiumKey},
		{"global alias", "GLOBAL", "  pass ", entitlements.ScopeNetwork, "", "pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &lookupRecorder{}
			r := NewPremiumResolver(rec, tt.scope, "s1", tt.key)

			ok, err := r.IsPremium(uuid.New()).Await(context.Background())
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.wantScope, rec.scope)
			assert.Equal(t, tt.wantServer, rec.serverID)
			assert.Equal(t, tt.wantKey, rec.key)
			assert.Equal(t, tt.wantKey, r.Key())
		})
	}
}
