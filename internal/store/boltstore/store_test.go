package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/store"
	"github.com/MJE43/blackjack-policy/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), "policy.bolt"), zerolog.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("", zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSeqKeyOrder(t *testing.T) {
	if string(seqKey(255)) >= string(seqKey(256)) {
		t.Error("sequence keys must sort numerically")
	}
}
