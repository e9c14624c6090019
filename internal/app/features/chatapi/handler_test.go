package chatapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/veil-chat/veil/internal/app/engine"
	"github.com/veil-chat/veil/internal/app/features/chatapi"
	"github.com/veil-chat/veil/internal/app/store/rtstore/memstore"
	"github.com/veil-chat/veil/internal/testutil"
)

func newTestAPI(t *testing.T) (*engine.Engine, http.Handler) {
	t.Helper()
	eng := engine.New(memstore.New(), zap.NewNop())
	h := chatapi.NewHandler(eng, zap.NewNop())
	return eng, chatapi.Routes(h)
}

func adminEngineSession(u testutil.TestUser) engine.Session {
	return engine.Session{
		UserID:      u.ID,
		DisplayName: u.Name,
		IsAdmin:     u.IsAdmin,
		Verified:    func() bool { return u.Verified },
	}
}

func TestCreateGroupEndpoint(t *testing.T) {
	_, router := newTestAPI(t)
	admin := testutil.AdminUser()

	req := testutil.WithUser(testutil.NewJSONRequest("POST", "/groups", `{"name":"Book Club"}`), admin)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)

	rec.AssertStatus(t, http.StatusCreated)

	var resp struct {
		Group struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			JoinCode string `json:"join_code"`
			IsAdmin  bool   `json:"is_admin"`
			MyAlias  string `json:"my_alias"`
		} `json:"group"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Group.Name != "Book Club" || !resp.Group.IsAdmin {
		t.Errorf("unexpected group: %+v", resp.Group)
	}
	if resp.Group.JoinCode == "" {
		t.Error("join code not exposed to the creating admin")
	}
	if resp.Group.MyAlias != admin.Name+" (Admin)" {
		t.Errorf("admin alias: got %q", resp.Group.MyAlias)
	}
}

func TestCreateGroupForbiddenForNonAdmin(t *testing.T) {
	_, router := newTestAPI(t)

	req := testutil.WithUser(testutil.NewJSONRequest("POST", "/groups", `{"name":"Book Club"}`), testutil.VerifiedUser())
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)

	rec.AssertStatus(t, http.StatusForbidden)
}

func TestChatAPIRequiresVerifiedSession(t *testing.T) {
	_, router := newTestAPI(t)

	// No user at all.
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewRequest("GET", "/groups"))
	rec.AssertStatus(t, http.StatusUnauthorized)

	// Signed in but unverified.
	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewAuthenticatedRequest("GET", "/groups", testutil.UnverifiedUser()))
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestJoinByCode(t *testing.T) {
	eng, router := newTestAPI(t)
	admin := testutil.AdminUser()
	member := testutil.VerifiedUser()

	group, err := eng.CreateGroup(context.Background(), adminEngineSession(admin), "Book Club")
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}

	req := testutil.WithUser(testutil.NewJSONRequest("POST", "/groups/join", `{"code":"`+group.JoinCode+`"}`), member)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)

	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Group struct {
			ID       string `json:"id"`
			MyAlias  string `json:"my_alias"`
			JoinCode string `json:"join_code"`
		} `json:"group"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Group.ID != group.ID {
		t.Errorf("joined group: got %q, want %q", resp.Group.ID, group.ID)
	}
	if resp.Group.MyAlias == "" {
		t.Error("no alias assigned on join")
	}
	if resp.Group.JoinCode != "" {
		t.Error("join code leaked to a non-admin member")
	}

	// Joining again reports the conflict.
	req = testutil.WithUser(testutil.NewJSONRequest("POST", "/groups/join", `{"code":"`+group.JoinCode+`"}`), member)
	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusConflict)
}

func TestJoinUnknownCode(t *testing.T) {
	_, router := newTestAPI(t)

	req := testutil.WithUser(testutil.NewJSONRequest("POST", "/groups/join", `{"code":"NOPE0000"}`), testutil.VerifiedUser())
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)

	rec.AssertStatus(t, http.StatusNotFound)
}

func TestSendAndListMessages(t *testing.T) {
	eng, router := newTestAPI(t)
	admin := testutil.AdminUser()

	group, err := eng.CreateGroup(context.Background(), adminEngineSession(admin), "Book Club")
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}

	req := testutil.WithUser(testutil.NewJSONRequest("POST", "/groups/"+group.ID+"/messages", `{"content":"hello"}`), admin)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusAccepted)

	req = testutil.WithUser(testutil.NewRequest("GET", "/groups/"+group.ID+"/messages"), admin)
	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "hello")
	rec.AssertContains(t, admin.Name+" (Admin)")
}

func TestMessagesForbiddenForNonMembers(t *testing.T) {
	eng, router := newTestAPI(t)
	admin := testutil.AdminUser()

	group, err := eng.CreateGroup(context.Background(), adminEngineSession(admin), "Book Club")
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}

	req := testutil.WithUser(testutil.NewRequest("GET", "/groups/"+group.ID+"/messages"), testutil.VerifiedUser())
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusForbidden)
}

func TestListGroupsShowsOnlyMemberships(t *testing.T) {
	eng, router := newTestAPI(t)
	admin := testutil.AdminUser()
	other := testutil.AdminUser()

	if _, err := eng.CreateGroup(context.Background(), adminEngineSession(admin), "Mine"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := eng.CreateGroup(context.Background(), adminEngineSession(other), "Theirs"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := testutil.WithUser(testutil.NewRequest("GET", "/groups"), admin)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Groups []struct {
			Name string `json:"name"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Groups) != 1 || resp.Groups[0].Name != "Mine" {
		t.Errorf("groups: got %+v, want only Mine", resp.Groups)
	}
}
