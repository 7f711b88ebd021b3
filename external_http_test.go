package authflow_test

import (
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	af "github.com/manualhq/authflow"
)

func TestFinishExternalLoginRedirects(t *testing.T) {
	accounts := newMemAccountStore()
	linked := &af.Account{Email: "linked@example.com", EmailConfirmed: true}
	if err := accounts.Create(linked, ""); err != nil {
		t.Fatal(err)
	}
	if err := accounts.AddBinding(linked, af.Binding{Provider: "google", ProviderKey: "g-1"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		ident        *af.ExternalIdentity
		providerErr  string
		wantLocation string
	}{
		{
			name:         "linked account goes home",
			ident:        &af.ExternalIdentity{Provider: "google", ProviderKey: "g-1", Email: "linked@example.com"},
			wantLocation: "/",
		},
		{
			name:         "unknown identity goes to display name collection",
			ident:        &af.ExternalIdentity{Provider: "google", ProviderKey: "g-new", Email: "new@example.com"},
			wantLocation: "/auth/external/displayname",
		},
		{
			name:         "provider error bounces to login",
			providerErr:  "access_denied",
			wantLocation: "/auth/login",
		},
		{
			name:         "nil identity bounces to login",
			wantLocation: "/auth/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, _ := newExternalFlow(accounts, newMemFlowStore())
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
			rr := httptest.NewRecorder()
			flow.FinishExternalLogin(rr, req, tt.ident, tt.providerErr)

			if rr.Code != http.StatusFound {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			loc, err := url.Parse(rr.Header().Get("Location"))
			if err != nil {
				t.Fatal(err)
			}
			if loc.Path != tt.wantLocation {
				t.Errorf("redirect = %s, want %s", loc.Path, tt.wantLocation)
			}
		})
	}
}

func TestDisplayNameFormPeeksWithoutConsuming(t *testing.T) {
	flowState := newMemFlowStore()
	flow, _ := newExternalFlow(newMemAccountStore(), flowState)
	ctx := httptest.NewRequest(http.MethodGet, "/auth/external/displayname", nil).Context()

	if _, err := flow.CompleteCallback(ctx, af.ExternalIdentity{
		Provider: "google", ProviderKey: "g-1", Email: "new@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	// Rendering the form twice must not consume the hand-off.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/auth/external/displayname", nil)
		rr := httptest.NewRecorder()
		flow.HandleDisplayNameForm(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("form render %d status = %d", i, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `name="display_name"`) {
			t.Fatalf("form render %d has no display_name input", i)
		}
	}
	if ok, _ := flowState.Has(ctx, "pendingExternalLogin"); !ok {
		t.Error("rendering the form consumed the pending identity")
	}
}

func TestDisplayNameFormWithoutState(t *testing.T) {
	flow, _ := newExternalFlow(newMemAccountStore(), newMemFlowStore())

	req := httptest.NewRequest(http.MethodGet, "/auth/external/displayname", nil)
	rr := httptest.NewRecorder()
	flow.HandleDisplayNameForm(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
	loc, _ := url.Parse(rr.Header().Get("Location"))
	if loc.Path != "/auth/login" {
		t.Errorf("redirect = %s, want the login page", loc.Path)
	}
	if loc.Query().Get("status") == "" {
		t.Error("redirect carries no status message")
	}
}

func TestHandleDisplayNameSignsIn(t *testing.T) {
	accounts := newMemAccountStore()
	flowState := newMemFlowStore()
	flow, issuer := newExternalFlow(accounts, flowState)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
	if _, err := flow.CompleteCallback(req.Context(), af.ExternalIdentity{
		Provider: "google", ProviderKey: "g-1", Email: "new@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	form := url.Values{}
	form.Set("display_name", "New Person")
	post := httptest.NewRequest(http.MethodPost, "/auth/external/displayname", strings.NewReader(form.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	flow.HandleDisplayName(rr, post)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Location") != "/" {
		t.Errorf("redirect = %s, want /", rr.Header().Get("Location"))
	}
	account, err := accounts.FindByEmail("new@example.com")
	if err != nil {
		t.Fatal("account was not created")
	}
	if len(issuer.signedIn) != 1 || issuer.signedIn[0] != account.ID {
		t.Errorf("signed in = %v, want %s", issuer.signedIn, account.ID)
	}
}

func TestDisplayNameFormEscapesReturnURL(t *testing.T) {
	flowState := newMemFlowStore()
	flow, _ := newExternalFlow(newMemAccountStore(), flowState)
	ctx := httptest.NewRequest(http.MethodGet, "/auth/external/displayname", nil).Context()
	if _, err := flow.CompleteCallback(ctx, af.ExternalIdentity{
		Provider: "google", ProviderKey: "g-1", Email: "new@example.com",
	}); err != nil {
		t.Fatal(err)
	}

	hostile := `/"><script>alert(1)</script>`
	req := httptest.NewRequest(http.MethodGet,
		"/auth/external/displayname?returnUrl="+url.QueryEscape(hostile), nil)
	rr := httptest.NewRecorder()
	flow.HandleDisplayNameForm(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Contains(body, "<script>") {
		t.Fatalf("return URL reflected unescaped:\n%s", body)
	}
	if !strings.Contains(body, html.EscapeString(hostile)) {
		t.Errorf("escaped return URL missing from the form:\n%s", body)
	}
}
