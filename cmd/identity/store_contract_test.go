package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// A syntactically valid PHC string; contract tests never verify against it.
const contractHash = "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5"

type storeFactory func(t *testing.T) Store

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("CreateThenFindByEveryField", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		phone := "+1 (555) 010-9999"
		created := mustCreate(t, s, "Alice", "Alice@Example.com", &phone)

		if created.ID == "" || len(created.ID) != 26 {
			t.Fatalf("expected ULID id, got %q", created.ID)
		}
		if !created.IsActive || created.DeletedAt != nil {
			t.Fatalf("new identity must be active and not deleted: %+v", created)
		}

		cases := []struct {
			field Field
			value string
		}{
			{FieldID, created.ID},
			{FieldEmail, "  alice@EXAMPLE.com "},
			{FieldUsername, "ALICE"},
			{FieldPhoneNumber, "+15550109999"},
		}
		for _, tc := range cases {
			got, err := s.FindBy(ctx, tc.field, tc.value)
			if err != nil {
				t.Fatalf("FindBy(%s): %v", tc.field, err)
			}
			if got.ID != created.ID {
				t.Fatalf("FindBy(%s) id=%q want %q", tc.field, got.ID, created.ID)
			}
			if got.Email != "Alice@Example.com" || got.Username != "Alice" {
				t.Fatalf("FindBy(%s) must keep display casing, got %q/%q", tc.field, got.Username, got.Email)
			}
			if got.CredentialHash != contractHash {
				t.Fatalf("FindBy(%s) lost the credential hash", tc.field)
			}
		}

		if _, err := s.FindBy(ctx, FieldEmail, "nobody@example.com"); !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("DuplicateFieldsCaseInsensitive", func(t *testing.T) {
		s := newStore(t)

		phone := "+15550100000"
		mustCreate(t, s, "navid", "navid@example.com", &phone)

		other := "+1 555 010 0000"
		cases := []struct {
			name     string
			username string
			email    string
			phone    *string
			field    string
		}{
			{"username", "NaViD", "fresh1@example.com", nil, FieldNameUsername},
			{"email", "fresh2", "NAVID@example.COM", nil, FieldNameEmail},
			{"phone", "fresh3", "fresh3@example.com", &other, FieldNamePhoneNumber},
		}
		for _, tc := range cases {
			_, err := s.Create(testCtx(t), CreateInput{
				Username:       tc.username,
				Email:          tc.email,
				PhoneNumber:    tc.phone,
				CredentialHash: contractHash,
			})
			field, ok := DuplicateField(err)
			if !ok {
				t.Fatalf("%s: expected ConflictError, got %v", tc.name, err)
			}
			if field != tc.field {
				t.Fatalf("%s: field=%q want %q", tc.name, field, tc.field)
			}
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("%s: expected errors.Is(ErrConflict)", tc.name)
			}
		}
	})

	t.Run("ConcurrentDuplicateEmailOneWinner", func(t *testing.T) {
		s := newStore(t)

		const n = 8
		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			errs      = make([]error, n)
			successes int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = s.Create(context.Background(), CreateInput{
					Username:       fmt.Sprintf("racer%d", i),
					Email:          "race@example.com",
					CredentialHash: contractHash,
				})
			}(i)
		}
		close(start)
		wg.Wait()

		for i, err := range errs {
			if err == nil {
				successes++
				continue
			}
			field, ok := DuplicateField(err)
			if !ok || field != FieldNameEmail {
				t.Fatalf("racer %d: expected duplicate email, got %v", i, err)
			}
		}
		if successes != 1 {
			t.Fatalf("expected exactly one winner, got %d", successes)
		}
	})

	t.Run("SoftDeleteHidesAndReleasesValues", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		first := mustCreate(t, s, "bob", "bob@example.com", nil)
		if err := s.SoftDelete(ctx, first.ID, time.Now().UTC()); err != nil {
			t.Fatalf("SoftDelete: %v", err)
		}

		if _, err := s.FindBy(ctx, FieldEmail, "bob@example.com"); !IsNotFound(err) {
			t.Fatalf("deleted identity must not resolve, got %v", err)
		}
		if err := s.SoftDelete(ctx, first.ID, time.Now().UTC()); !IsNotFound(err) {
			t.Fatalf("second SoftDelete must be NotFound, got %v", err)
		}
		if err := s.UpdateLastLogin(ctx, first.ID, time.Now().UTC()); !IsNotFound(err) {
			t.Fatalf("UpdateLastLogin on deleted must be NotFound, got %v", err)
		}

		admin, err := s.GetByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetByID must see deleted rows: %v", err)
		}
		if admin.DeletedAt == nil || admin.IsActive {
			t.Fatalf("expected tombstoned row, got active=%v deleted=%v", admin.IsActive, admin.DeletedAt)
		}

		// Unique values are reusable once the holder is deleted.
		second := mustCreate(t, s, "BOB", "Bob@Example.com", nil)
		if second.ID == first.ID {
			t.Fatalf("expected a new id")
		}
	})

	t.Run("ListPagesVisibleRowsById", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		var ids []string
		for i := 0; i < 5; i++ {
			ident := mustCreate(t, s, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i), nil)
			ids = append(ids, ident.ID)
		}
		if err := s.SoftDelete(ctx, ids[2], time.Now().UTC()); err != nil {
			t.Fatalf("SoftDelete: %v", err)
		}

		all, err := s.List(ctx, ListInput{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 visible rows, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i-1].ID >= all[i].ID {
				t.Fatalf("List not ordered by id: %q >= %q", all[i-1].ID, all[i].ID)
			}
		}
		for _, ident := range all {
			if ident.ID == ids[2] {
				t.Fatalf("deleted identity listed")
			}
		}

		page, err := s.List(ctx, ListInput{Limit: 2, Offset: 1})
		if err != nil {
			t.Fatalf("List page: %v", err)
		}
		if len(page) != 2 || page[0].ID != all[1].ID || page[1].ID != all[2].ID {
			t.Fatalf("unexpected page: %+v", page)
		}

		empty, err := s.List(ctx, ListInput{Limit: 10, Offset: 50})
		if err != nil {
			t.Fatalf("List past end: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected empty page, got %d", len(empty))
		}
	})

	t.Run("UpdateProfilePatchesAndChecksUniqueness", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		a := mustCreate(t, s, "carol", "carol@example.com", nil)
		mustCreate(t, s, "dave", "dave@example.com", nil)

		first := "Carol"
		bio := "hello"
		birth := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
		updated, err := s.UpdateProfile(ctx, a.ID, ProfilePatch{
			Profile: Profile{FirstName: &first, Bio: &bio, BirthDate: &birth},
			Now:     time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if updated.Profile.FirstName == nil || *updated.Profile.FirstName != "Carol" {
			t.Fatalf("first name not applied: %+v", updated.Profile)
		}
		if updated.Profile.BirthDate == nil || !updated.Profile.BirthDate.Equal(birth) {
			t.Fatalf("birth date not applied: %v", updated.Profile.BirthDate)
		}
		if updated.Email != "carol@example.com" {
			t.Fatalf("untouched email changed: %q", updated.Email)
		}
		if updated.CredentialHash != contractHash {
			t.Fatalf("credential hash must never change")
		}

		// Second patch leaves earlier fields alone.
		last := "Smith"
		updated, err = s.UpdateProfile(ctx, a.ID, ProfilePatch{Profile: Profile{LastName: &last}})
		if err != nil {
			t.Fatalf("UpdateProfile 2: %v", err)
		}
		if updated.Profile.FirstName == nil || *updated.Profile.FirstName != "Carol" {
			t.Fatalf("COALESCE patch dropped first name")
		}

		taken := "DAVE@example.com"
		_, err = s.UpdateProfile(ctx, a.ID, ProfilePatch{Email: &taken})
		if field, ok := DuplicateField(err); !ok || field != FieldNameEmail {
			t.Fatalf("expected duplicate email, got %v", err)
		}

		newEmail := "carol@new.example.com"
		updated, err = s.UpdateProfile(ctx, a.ID, ProfilePatch{Email: &newEmail})
		if err != nil {
			t.Fatalf("UpdateProfile email: %v", err)
		}
		if _, err := s.FindBy(ctx, FieldEmail, newEmail); err != nil {
			t.Fatalf("new email must resolve: %v", err)
		}
		if _, err := s.FindBy(ctx, FieldEmail, "carol@example.com"); !IsNotFound(err) {
			t.Fatalf("old email must not resolve, got %v", err)
		}

		if _, err := s.UpdateProfile(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", ProfilePatch{Profile: Profile{Bio: &bio}}); !IsNotFound(err) {
			t.Fatalf("expected not found for unknown id, got %v", err)
		}
	})

	t.Run("UpdateLastLogin", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		a := mustCreate(t, s, "erin", "erin@example.com", nil)
		at := time.Now().UTC().Truncate(time.Millisecond)
		if err := s.UpdateLastLogin(ctx, a.ID, at); err != nil {
			t.Fatalf("UpdateLastLogin: %v", err)
		}
		got, err := s.GetByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.LastLoginAt == nil || !got.LastLoginAt.Equal(at) {
			t.Fatalf("last_login_at=%v want %v", got.LastLoginAt, at)
		}
		if err := s.UpdateLastLogin(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", at); !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("CanceledContextIsUnavailable", func(t *testing.T) {
		s := newStore(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Create(ctx, CreateInput{Username: "x", Email: "x@example.com", CredentialHash: contractHash})
		if !errors.Is(err, ErrStorageUnavailable) || !IsRetryable(err) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
		if _, err := s.FindBy(ctx, FieldEmail, "x@example.com"); !errors.Is(err, ErrStorageUnavailable) {
			t.Fatalf("expected ErrStorageUnavailable, got %v", err)
		}
	})

	t.Run("PhoneHasOneCanonicalForm", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		plus := "+15550109999"
		a := mustCreate(t, s, "frank", "frank@example.com", &plus)

		for _, variant := range []string{"15550109999", "1 555 010 9999", "+1-555-010-9999"} {
			_, err := s.Create(ctx, CreateInput{
				Username:       "grace",
				Email:          "grace@example.com",
				PhoneNumber:    &variant,
				CredentialHash: contractHash,
			})
			if field, ok := DuplicateField(err); !ok || field != FieldNamePhoneNumber {
				t.Fatalf("%q: expected duplicate phone_number, got %v", variant, err)
			}

			got, err := s.FindBy(ctx, FieldPhoneNumber, variant)
			if err != nil || got.ID != a.ID {
				t.Fatalf("FindBy(%q)=%v, %v want %s", variant, got.ID, err, a.ID)
			}
		}

		bare := "+"
		if _, err := s.UpdateProfile(ctx, a.ID, ProfilePatch{PhoneNumber: &bare}); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("expected ErrValidationFailed for a phone without digits, got %v", err)
		}
	})

	t.Run("CreateRequiresFields", func(t *testing.T) {
		s := newStore(t)

		plusOnly := "+"
		dashes := " - "
		cases := []CreateInput{
			{Username: " ", Email: "a@example.com", CredentialHash: contractHash},
			{Username: "a", Email: "", CredentialHash: contractHash},
			{Username: "a", Email: "a@example.com"},
			{Username: "a", Email: "a@example.com", PhoneNumber: &plusOnly, CredentialHash: contractHash},
			{Username: "a", Email: "a@example.com", PhoneNumber: &dashes, CredentialHash: contractHash},
		}
		for i, in := range cases {
			if _, err := s.Create(testCtx(t), in); !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("case %d: expected ErrValidationFailed, got %v", i, err)
			}
		}
	})
}

func mustCreate(t *testing.T, s Store, username, email string, phone *string) Identity {
	t.Helper()
	out, err := s.Create(testCtx(t), CreateInput{
		Username:       username,
		Email:          email,
		PhoneNumber:    phone,
		CredentialHash: contractHash,
		Now:            time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return out
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}
