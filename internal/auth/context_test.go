package auth

import (
	"context"
	"testing"

	"github.com/jvillanueva/hilot/internal/model"
)

func TestFromContextMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected no auth context")
	}
	if UserID(ctx) != 0 {
		t.Error("expected zero user id")
	}
	if UserIDPtr(ctx) != nil {
		t.Error("expected nil user id pointer")
	}
	if IsAdmin(ctx) {
		t.Error("expected not admin")
	}
	if CanEditRecords(ctx) {
		t.Error("expected no edit rights")
	}
}

func TestRoundTrip(t *testing.T) {
	ac := AuthContext{UserID: 7, Username: "aurora", Role: model.RoleMidwife, SessionID: 3}
	ctx := WithAuth(context.Background(), ac)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected auth context")
	}
	if got != ac {
		t.Errorf("got %+v, want %+v", got, ac)
	}
	if UserID(ctx) != 7 {
		t.Errorf("user id = %d, want 7", UserID(ctx))
	}
	if p := UserIDPtr(ctx); p == nil || *p != 7 {
		t.Error("expected user id pointer 7")
	}
}

func TestRolePermissions(t *testing.T) {
	admin := WithAuth(context.Background(), AuthContext{UserID: 1, Role: model.RoleAdmin})
	midwife := WithAuth(context.Background(), AuthContext{UserID: 2, Role: model.RoleMidwife})
	bhw := WithAuth(context.Background(), AuthContext{UserID: 3, Role: model.RoleBHW})

	if !IsAdmin(admin) {
		t.Error("admin should be admin")
	}
	if IsAdmin(midwife) || IsAdmin(bhw) {
		t.Error("midwife/bhw should not be admin")
	}
	if !CanEditRecords(admin) || !CanEditRecords(midwife) {
		t.Error("admin and midwife should edit records")
	}
	if CanEditRecords(bhw) {
		t.Error("bhw should be read-only")
	}
}
