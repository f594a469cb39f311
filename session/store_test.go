package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "tz"), mr
}

func testSession(sessionID, accountID string) *Session {
	now := time.Now()
	return &Session{
		SessionID:   sessionID,
		AccountID:   accountID,
		Role:        "dentist",
		RefreshHash: sha256.Sum256([]byte(sessionID)),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-1", "acc-1")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccountID != sess.AccountID || got.Role != sess.Role {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, sess)
	}
	if got.RefreshHash != sess.RefreshHash {
		t.Fatal("refresh hash mismatch after round trip")
	}
	if got.SessionID != "sid-1" {
		t.Fatalf("expected session id restored from key, got %s", got.SessionID)
	}
}

func TestGetMissingSessionReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestGetExpiredSessionSelfDeletes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-exp", "acc-1")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "sid-exp"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for expired session, got %v", err)
	}

	// The lazily deleted session also left the account index.
	ids, err := store.ActiveSessionIDs(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	for _, id := range ids {
		if id == "sid-exp" {
			t.Fatal("expected expired session to leave the index")
		}
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-del", "acc-1")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, "sid-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "sid-del"); err != nil {
		t.Fatalf("repeated Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sid-del"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDeleteAllForAccountClearsIndexedSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"sid-a", "sid-b", "sid-c"} {
		if err := store.Save(ctx, testSession(sid, "acc-1"), time.Hour); err != nil {
			t.Fatalf("Save %s failed: %v", sid, err)
		}
	}
	if err := store.Save(ctx, testSession("sid-other", "acc-2"), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 {
		t.Fatalf("expected 3 indexed sessions, got %v", ids)
	}

	if err := store.DeleteAllForAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("DeleteAllForAccount failed: %v", err)
	}

	for _, sid := range []string{"sid-a", "sid-b", "sid-c"} {
		if _, err := store.Get(ctx, sid); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s gone, got %v", sid, err)
		}
	}
	// The other account is untouched.
	if _, err := store.Get(ctx, "sid-other"); err != nil {
		t.Fatalf("expected acc-2 session to survive: %v", err)
	}
}

func TestRotateRefreshHashSwapsAtomically(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("sid-rot", "acc-1")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	next := sha256.Sum256([]byte("next"))
	rotated, err := store.RotateRefreshHash(ctx, "sid-rot", sess.RefreshHash, next)
	if err != nil {
		t.Fatalf("RotateRefreshHash failed: %v", err)
	}
	if rotated.RefreshHash != next {
		t.Fatal("expected the returned session to carry the next hash")
	}

	got, err := store.Get(ctx, "sid-rot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RefreshHash != next {
		t.Fatal("expected the stored hash to be rotated")
	}

	// The old hash no longer rotates.
	if _, err := store.RotateRefreshHash(ctx, "sid-rot", sess.RefreshHash, next); !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("expected ErrRefreshHashMismatch, got %v", err)
	}
}

func TestRotateRefreshHashMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	var a, b [32]byte
	if _, err := store.RotateRefreshHash(context.Background(), "absent", a, b); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestEncodeDecodeRejectsBadInput(t *testing.T) {
	sess := testSession("sid-1", "acc-1")

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Unknown format version.
	bad := append([]byte{}, data...)
	bad[0] = 99
	if _, err := Decode(bad); err == nil {
		t.Fatal("expected an error for an unknown version byte")
	}

	// Truncated blob.
	if _, err := Decode(data[:len(data)-4]); err == nil {
		t.Fatal("expected an error for a truncated blob")
	}

	long := testSession("sid-1", string(make([]byte, 300)))
	if _, err := Encode(long); err == nil {
		t.Fatal("expected an error for an oversized account id")
	}
}
