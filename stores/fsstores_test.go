package stores_test

import (
	"errors"
	"os"
	"testing"
	"time"

	af "github.com/manualhq/authflow"
	"github.com/manualhq/authflow/stores"
)

func setupAccountStore(t *testing.T) *stores.FSAccountStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "authflow-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	return stores.NewFSAccountStore(tmpDir)
}

func TestFSAccountCreateAndFind(t *testing.T) {
	store := setupAccountStore(t)

	account := &af.Account{Email: "user@example.com", DisplayName: "User"}
	if err := store.Create(account, "password123"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if account.ID == "" {
		t.Fatal("Create did not assign an ID")
	}

	byID, err := store.FindByID(account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if byID.Email != "user@example.com" || byID.DisplayName != "User" {
		t.Errorf("FindByID = %+v", byID)
	}

	byEmail, err := store.FindByEmail("user@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if byEmail.ID != account.ID {
		t.Errorf("FindByEmail ID = %s, want %s", byEmail.ID, account.ID)
	}

	ok, err := store.CheckPassword(account, "password123")
	if err != nil || !ok {
		t.Errorf("CheckPassword = (%v, %v), want (true, nil)", ok, err)
	}
	ok, _ = store.CheckPassword(account, "wrong")
	if ok {
		t.Error("CheckPassword accepted a wrong password")
	}
}

func TestFSAccountDuplicateEmail(t *testing.T) {
	store := setupAccountStore(t)

	first := &af.Account{Email: "user@example.com"}
	if err := store.Create(first, ""); err != nil {
		t.Fatal(err)
	}
	second := &af.Account{Email: "user@example.com"}
	if err := store.Create(second, ""); !errors.Is(err, af.ErrEmailTaken) {
		t.Fatalf("duplicate email Create error = %v, want ErrEmailTaken", err)
	}
}

func TestFSAccountNotFound(t *testing.T) {
	store := setupAccountStore(t)

	if _, err := store.FindByID("nope"); err != af.ErrAccountNotFound {
		t.Errorf("FindByID err = %v, want ErrAccountNotFound", err)
	}
	if _, err := store.FindByEmail("nope@example.com"); err != af.ErrAccountNotFound {
		t.Errorf("FindByEmail err = %v, want ErrAccountNotFound", err)
	}
	if _, err := store.FindByBinding("google", "nope"); err != af.ErrAccountNotFound {
		t.Errorf("FindByBinding err = %v, want ErrAccountNotFound", err)
	}
}

func TestFSAccountBindings(t *testing.T) {
	store := setupAccountStore(t)

	account := &af.Account{Email: "user@example.com"}
	if err := store.Create(account, ""); err != nil {
		t.Fatal(err)
	}
	binding := af.Binding{Provider: "google", ProviderKey: "g-1", ProviderDisplayName: "Google"}
	if err := store.AddBinding(account, binding); err != nil {
		t.Fatalf("AddBinding failed: %v", err)
	}

	found, err := store.FindByBinding("google", "g-1")
	if err != nil {
		t.Fatalf("FindByBinding failed: %v", err)
	}
	if found.ID != account.ID {
		t.Errorf("FindByBinding ID = %s, want %s", found.ID, account.ID)
	}

	// Re-adding the same binding for the same account is fine.
	if err := store.AddBinding(account, binding); err != nil {
		t.Fatalf("re-AddBinding failed: %v", err)
	}
	bindings, err := store.ListBindings(account)
	if err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 1 {
		t.Errorf("bindings = %d, want 1", len(bindings))
	}

	// The same external identity cannot bind to a second account.
	other := &af.Account{Email: "other@example.com"}
	if err := store.Create(other, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.AddBinding(other, binding); err == nil {
		t.Error("binding bound to two accounts")
	}
}

func TestFSAccountDeleteRemovesIndexes(t *testing.T) {
	store := setupAccountStore(t)

	account := &af.Account{Email: "user@example.com"}
	if err := store.Create(account, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.AddBinding(account, af.Binding{Provider: "google", ProviderKey: "g-1"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(account); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.FindByID(account.ID); err != af.ErrAccountNotFound {
		t.Error("account still findable by ID")
	}
	if _, err := store.FindByEmail("user@example.com"); err != af.ErrAccountNotFound {
		t.Error("account still findable by email")
	}
	if _, err := store.FindByBinding("google", "g-1"); err != af.ErrAccountNotFound {
		t.Error("account still findable by binding")
	}

	// The email is free for a fresh registration.
	fresh := &af.Account{Email: "user@example.com"}
	if err := store.Create(fresh, ""); err != nil {
		t.Errorf("re-registering a deleted email failed: %v", err)
	}
}

func TestFSAccountSetters(t *testing.T) {
	store := setupAccountStore(t)

	account := &af.Account{Email: "user@example.com", DisplayName: "Before"}
	if err := store.Create(account, "password123"); err != nil {
		t.Fatal(err)
	}

	if err := store.SetEmailConfirmed(account, true); err != nil {
		t.Fatalf("SetEmailConfirmed failed: %v", err)
	}
	updated, _ := store.FindByID(account.ID)
	if !updated.EmailConfirmed {
		t.Error("email not confirmed")
	}

	if err := store.SetPassword(account, "newpassword"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	ok, _ := store.CheckPassword(account, "newpassword")
	if !ok {
		t.Error("new password not accepted")
	}
	ok, _ = store.CheckPassword(account, "password123")
	if ok {
		t.Error("old password still accepted")
	}

	account.DisplayName = "After"
	if err := store.Update(account); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, _ = store.FindByID(account.ID)
	if updated.DisplayName != "After" {
		t.Errorf("display name = %s", updated.DisplayName)
	}
}

func TestFSTokenLifecycle(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authflow-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	store := stores.NewFSTokenStore(tmpDir)

	token, err := store.CreateToken("acct-1", "user@example.com", af.TokenTypeEmailConfirm, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}

	got, err := store.GetToken(token.Token)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if got.AccountID != "acct-1" || got.Type != af.TokenTypeEmailConfirm {
		t.Errorf("GetToken = %+v", got)
	}

	if err := store.DeleteToken(token.Token); err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}
	if _, err := store.GetToken(token.Token); err != af.ErrTokenNotFound {
		t.Errorf("deleted token err = %v, want ErrTokenNotFound", err)
	}
	// Deleting again is not an error.
	if err := store.DeleteToken(token.Token); err != nil {
		t.Errorf("second DeleteToken = %v", err)
	}
}

func TestFSTokenExpiry(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authflow-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	store := stores.NewFSTokenStore(tmpDir)

	token, err := store.CreateToken("acct-1", "user@example.com", af.TokenTypePasswordReset, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetToken(token.Token); err != af.ErrTokenNotFound {
		t.Errorf("expired token err = %v, want ErrTokenNotFound", err)
	}
}

func TestFSTokenDeleteAccountTokens(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "authflow-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })
	store := stores.NewFSTokenStore(tmpDir)

	reset1, _ := store.CreateToken("acct-1", "a@b.com", af.TokenTypePasswordReset, time.Hour)
	reset2, _ := store.CreateToken("acct-1", "a@b.com", af.TokenTypePasswordReset, time.Hour)
	confirm, _ := store.CreateToken("acct-1", "a@b.com", af.TokenTypeEmailConfirm, time.Hour)
	otherReset, _ := store.CreateToken("acct-2", "c@d.com", af.TokenTypePasswordReset, time.Hour)

	if err := store.DeleteAccountTokens("acct-1", af.TokenTypePasswordReset); err != nil {
		t.Fatalf("DeleteAccountTokens failed: %v", err)
	}

	for _, gone := range []string{reset1.Token, reset2.Token} {
		if _, err := store.GetToken(gone); err != af.ErrTokenNotFound {
			t.Errorf("token %s survived DeleteAccountTokens", gone)
		}
	}
	for _, kept := range []string{confirm.Token, otherReset.Token} {
		if _, err := store.GetToken(kept); err != nil {
			t.Errorf("unrelated token %s was deleted", kept)
		}
	}
}
