package db_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/auth/db"
	"github.com/willemschots/webauth/internal/db/testdb"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/errorz"
	"github.com/willemschots/webauth/internal/krypto"
)

func Test_Tx_CreateAndUpdateAccount(t *testing.T) {
	t.Run("ok, create and update account", func(t *testing.T) {
		store := storeForTest(t)
		tx := beginTx(t, store)

		acc := testAccount(t, nil)

		t.Run("create", func(t *testing.T) {
			err := tx.CreateAccount(&acc)
			if err != nil {
				t.Fatalf("failed to create account: %v", err)
			}

			want := testAccount(t, func(a *auth.Account) {
				// The store should set the following fields of the account.
				a.Version = 1
				a.CreatedAt = now(t, 0)
				a.UpdatedAt = now(t, 0)
			})

			if !reflect.DeepEqual(acc, want) {
				t.Errorf("got\n%#v\nwant\n%#v\n", acc, want)
			}

			assertFindAccount(t, tx, want)
		})

		// Verify the account and request a password reset.
		acc.Verified = true
		acc.VerificationToken = nil
		acc.PasswordHash = argon2Hash(t, "$argon2id$v=19$m=47104,t=1,p=1$CkX5zzYLJMWm0y/17eScyw$Qfah+NewdsdeF0+iV72mShZhRO93Qwzdj17TUZCH6ZU")
		acc.SetResetToken(digest(t, 2), now(t, 5))

		t.Run("update", func(t *testing.T) {
			err := tx.UpdateAccount(&acc)
			if err != nil {
				t.Fatalf("failed to update account: %v", err)
			}

			want := testAccount(t, func(a *auth.Account) {
				a.Verified = true
				a.VerificationToken = nil
				a.PasswordHash = argon2Hash(t, "$argon2id$v=19$m=47104,t=1,p=1$CkX5zzYLJMWm0y/17eScyw$Qfah+NewdsdeF0+iV72mShZhRO93Qwzdj17TUZCH6ZU")
				a.ResetToken = ptr(digest(t, 2))
				a.ResetTokenExpiry = ptr(now(t, 5))
				a.Version = 2
				a.CreatedAt = now(t, 0)
				a.UpdatedAt = now(t, 1) // The store should update the UpdatedAt field.
			})

			if !reflect.DeepEqual(acc, want) {
				t.Errorf("got\n%#v\nwant\n%#v\n", acc, want)
			}

			assertFindAccount(t, tx, want)
		})

		err := tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit tx: %v", err)
		}
	})

	t.Run("ok, phone number is optional", func(t *testing.T) {
		store := storeForTest(t)
		tx := beginTx(t, store)

		acc := testAccount(t, func(a *auth.Account) {
			a.Phone = ""
		})

		err := tx.CreateAccount(&acc)
		if err != nil {
			t.Fatalf("failed to create account: %v", err)
		}

		assertFindAccount(t, tx, acc)
	})

	t.Run("fail, duplicate email with different case", func(t *testing.T) {
		store := storeForTest(t)
		tx := beginTx(t, store)

		acc := testAccount(t, nil)
		err := tx.CreateAccount(&acc)
		if err != nil {
			t.Fatalf("failed to create account: %v", err)
		}

		other := testAccount(t, func(a *auth.Account) {
			a.ID = uuid.MustParse("e3a7c8b4-8a58-4f8e-9f6a-3f0b2d2e8b11")
			a.Email = "Alice@Example.com"
			a.VerificationToken = ptr(digest(t, 3))
		})

		err = tx.CreateAccount(&other)
		if !errors.Is(err, errorz.ErrDuplicate) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrDuplicate, err)
		}
	})

	t.Run("fail, stale version", func(t *testing.T) {
		store := storeForTest(t)
		tx := beginTx(t, store)

		acc := testAccount(t, nil)
		err := tx.CreateAccount(&acc)
		if err != nil {
			t.Fatalf("failed to create account: %v", err)
		}

		stale := acc

		acc.Name = "Alice Updated"
		err = tx.UpdateAccount(&acc)
		if err != nil {
			t.Fatalf("failed to update account: %v", err)
		}

		stale.Name = "Alice Stale"
		err = tx.UpdateAccount(&stale)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}

		assertFindAccount(t, tx, acc)
	})

	invalid := map[string]func(*auth.Account){
		"fail, no id": func(a *auth.Account) {
			a.ID = uuid.Nil
		},
		"fail, unverified without verification token": func(a *auth.Account) {
			a.VerificationToken = nil
		},
		"fail, verified with verification token": func(a *auth.Account) {
			a.Verified = true
		},
		"fail, reset token without expiry": func(a *auth.Account) {
			a.ResetToken = ptr(digest(t, 2))
		},
		"fail, reset expiry without token": func(a *auth.Account) {
			a.ResetTokenExpiry = ptr(now(t, 5))
		},
	}

	for name, modFunc := range invalid {
		t.Run(name, func(t *testing.T) {
			store := storeForTest(t)
			tx := beginTx(t, store)

			acc := testAccount(t, modFunc)
			err := tx.CreateAccount(&acc)
			if !errors.Is(err, errorz.ErrConstraintViolated) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
			}
		})
	}
}

func Test_Tx_FindAccount(t *testing.T) {
	store := storeForTest(t)

	acc := testAccount(t, func(a *auth.Account) {
		a.ResetToken = ptr(digest(t, 2))
		a.ResetTokenExpiry = ptr(now(t, 5))
	})

	tx := beginTx(t, store)
	err := tx.CreateAccount(&acc)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	finders := map[string]func(tx auth.Tx) (auth.Account, error){
		"by id": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByID(acc.ID)
		},
		"by email": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByEmail("alice@example.com")
		},
		"by email, different case": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByEmail("ALICE@example.COM")
		},
		"by verification token": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByVerificationToken(digest(t, 1))
		},
		"by reset token": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByResetToken(digest(t, 2))
		},
	}

	for name, find := range finders {
		t.Run("ok, "+name, func(t *testing.T) {
			tx := beginTx(t, store)
			defer tx.Rollback()

			got, err := find(tx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(got, acc) {
				t.Errorf("got\n%#v\nwant\n%#v\n", got, acc)
			}
		})
	}

	notFound := map[string]func(tx auth.Tx) (auth.Account, error){
		"by id": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByID(uuid.MustParse("e3a7c8b4-8a58-4f8e-9f6a-3f0b2d2e8b11"))
		},
		"by email": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByEmail("jacob@example.com")
		},
		"by verification token": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByVerificationToken(digest(t, 3))
		},
		"by reset token": func(tx auth.Tx) (auth.Account, error) {
			return tx.FindAccountByResetToken(digest(t, 1))
		},
	}

	for name, find := range notFound {
		t.Run("fail, not found "+name, func(t *testing.T) {
			tx := beginTx(t, store)
			defer tx.Rollback()

			_, err := find(tx)
			if !errors.Is(err, errorz.ErrNotFound) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
			}
		})
	}

	t.Run("ok, account exists", func(t *testing.T) {
		tx := beginTx(t, store)
		defer tx.Rollback()

		exists, err := tx.AccountExists("Alice@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !exists {
			t.Fatalf("expected account to exist")
		}

		exists, err = tx.AccountExists("jacob@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if exists {
			t.Fatalf("expected account to not exist")
		}
	})

	t.Run("ok, find by email outside of transaction", func(t *testing.T) {
		got, err := store.FindAccountByEmail(context.Background(), "alice@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !reflect.DeepEqual(got, acc) {
			t.Errorf("got\n%#v\nwant\n%#v\n", got, acc)
		}
	})
}

func Test_Store_PhoneEncryptedAtRest(t *testing.T) {
	testDB := testdb.RunWhile(t, true)
	store := db.New(testDB, testDB, encryptor(), nil)

	acc := testAccount(t, nil)

	tx := beginTx(t, store)
	err := tx.CreateAccount(&acc)
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	var raw []byte
	err = testDB.QueryRow(`SELECT phone FROM accounts WHERE id = ?`, acc.ID).Scan(&raw)
	if err != nil {
		t.Fatalf("failed to query phone: %v", err)
	}

	if len(raw) == 0 || string(raw) == string(acc.Phone) {
		t.Fatalf("expected phone to be encrypted, got %q", raw)
	}
}

func Test_Store_FindAccountByEmail(t *testing.T) {
	readDB, writeDB := testdb.RunFileWhile(t)
	store := db.New(readDB, writeDB, encryptor(), func() time.Time {
		return now(t, 0)
	})

	acc := testAccount(t, nil)

	t.Run("fail, nothing committed yet", func(t *testing.T) {
		tx := beginTx(t, store)
		err := tx.CreateAccount(&acc)
		if err != nil {
			t.Fatalf("failed to create account: %v", err)
		}

		// the read pool must not see uncommitted writes.
		_, err = store.FindAccountByEmail(context.Background(), acc.Email)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Errorf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit: %v", err)
		}
	})

	for name, addr := range map[string]email.Address{
		"ok, same case":  "alice@example.com",
		"ok, other case": "ALICE@Example.COM",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := store.FindAccountByEmail(context.Background(), addr)
			if err != nil {
				t.Fatalf("failed to find account: %v", err)
			}

			if !reflect.DeepEqual(got, acc) {
				t.Errorf("got\n%#v\nwant\n%#v\n", got, acc)
			}
		})
	}

	t.Run("fail, unknown email", func(t *testing.T) {
		_, err := store.FindAccountByEmail(context.Background(), "bob@example.com")
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Errorf("expected error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})
}

func now(t *testing.T, i int) time.Time {
	t.Helper()
	if i > 9 {
		t.Fatalf("invalid time index: %d", i)
	}

	ts, err := time.Parse(time.RFC3339, fmt.Sprintf("2021-01-01T00:00:0%dZ", i))
	if err != nil {
		t.Fatalf("failed to parse time: %v", err)
	}

	return ts
}

func encryptor() *krypto.Encryptor {
	key, err := krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d")
	if err != nil {
		panic(err)
	}

	enc, err := krypto.NewEncryptor([]krypto.Key{key})
	if err != nil {
		panic(err)
	}

	return enc
}

func storeForTest(t *testing.T) *db.Store {
	t.Helper()

	testDB := testdb.RunWhile(t, true)

	i := 0
	return db.New(testDB, testDB, encryptor(), func() time.Time {
		n := now(t, i)
		i++
		return n
	})
}

func beginTx(t *testing.T, store *db.Store) auth.Tx {
	t.Helper()

	tx, err := store.BeginTx(context.Background())
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}

	return tx
}

func argon2Hash(t *testing.T, raw string) krypto.Argon2Hash {
	t.Helper()

	hash, err := krypto.ParseArgon2Hash(raw)
	if err != nil {
		t.Fatalf("failed to parse hash: %v", err)
	}

	return hash
}

// digest returns a deterministic token digest for index i.
func digest(t *testing.T, i int) krypto.TokenDigest {
	t.Helper()

	tok, err := krypto.ParseToken(fmt.Sprintf("%064x", i))
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	return tok.Digest()
}

func testAccount(t *testing.T, modFunc func(*auth.Account)) auth.Account {
	t.Helper()

	a := auth.Account{
		ID:                uuid.MustParse("5f0b7c5e-2d6a-4d0e-8a3c-9f5b1b1e2c3d"),
		Name:              "Alice",
		Email:             "alice@example.com",
		Phone:             "+31612345678",
		PasswordHash:      argon2Hash(t, "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0"),
		Enabled:           true,
		Verified:          false,
		VerificationToken: ptr(digest(t, 1)),
	}

	if modFunc != nil {
		modFunc(&a)
	}

	return a
}

func assertFindAccount(t *testing.T, tx auth.Tx, want auth.Account) {
	t.Helper()

	got, err := tx.FindAccountByID(want.ID)
	if err != nil {
		t.Fatalf("failed to find account: %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("got\n%#v\nwant\n%#v\n", got, want)
	}
}

func ptr[T any](v T) *T {
	return &v
}
