package definition_test

import (
	"context"
	"testing"

	"github.com/xraph/approve/actor"
	"github.com/xraph/approve/definition"
)

func TestSelector_ResolveRole(t *testing.T) {
	r := actor.NewStaticResolver().Grant("acme", "manager", "alice", "bob")

	got, err := definition.ByRole("manager").Resolve(context.Background(), r, "acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("members: want 2, got %v", got)
	}
}

func TestSelector_ResolveUserHonorsActiveFlag(t *testing.T) {
	r := actor.NewStaticResolver().AddUser("carol")
	ctx := context.Background()
	sel := definition.ByUser("carol")

	got, err := sel.Resolve(ctx, r, "acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0] != "carol" {
		t.Errorf("want [carol], got %v", got)
	}

	r.DeactivateUser("carol")
	got, err = sel.Resolve(ctx, r, "acme")
	if err != nil {
		t.Fatalf("resolve after deactivate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("inactive user must resolve to nobody, got %v", got)
	}
}

func TestSelector_ZeroResolvesToNobody(t *testing.T) {
	r := actor.NewStaticResolver()
	got, err := definition.Selector{}.Resolve(context.Background(), r, "acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("zero selector: want nobody, got %v", got)
	}
}
