package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorFrom_MissingActorManagesNothing(t *testing.T) {
	actor := ActorFrom(context.Background())
	assert.Equal(t, Actor{}, actor)
	assert.False(t, actor.CanManageTenant("t1"))
	assert.False(t, actor.CanManageTenant(""))
}

func TestActor_CanManageTenant(t *testing.T) {
	tests := []struct {
		actor Actor
		want  bool
	}{
		{SystemActor("scheduler"), true},
		{Actor{Role: RoleAdmin, ID: "admin"}, true},
		{Actor{Role: RoleTenant, ID: "t1", TenantID: "t1"}, true},
		{Actor{Role: RoleTenant, ID: "t2", TenantID: "t2"}, false},
		{Actor{Role: RoleEndUser, ID: "u1", TenantID: "t1"}, false},
	}
	for _, tt := range tests {
		ctx := WithActor(context.Background(), tt.actor)
		assert.Equal(t, tt.want, ActorFrom(ctx).CanManageTenant("t1"), tt.actor.ID)
	}
}
