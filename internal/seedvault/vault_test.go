package seedvault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/blackjack-policy/internal/engine"
)

func TestVaultKeyring(t *testing.T) {
	keyring.MockInit()
	v := New("", "")
	seeds := engine.Seeds{Server: "server-secret", Client: "client"}

	if _, err := v.Load("main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before Save: err = %v, want ErrNotFound", err)
	}
	if err := v.Save("main", seeds); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := v.Load("main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != seeds {
		t.Fatalf("Load = %+v, want %+v", got, seeds)
	}

	if err := v.Delete("main"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Load("main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestVaultFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: secret service not running"))
	t.Cleanup(keyring.MockInit)

	path := filepath.Join(t.TempDir(), "secrets", "seeds.json")
	v := New("test", path)
	seeds := engine.Seeds{Server: "s", Client: "c"}
	if err := v.Save("alt", seeds); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("fallback file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("fallback file mode = %v, want 0600", perm)
	}

	got, err := v.Load("alt")
	if err != nil || got != seeds {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if err := v.Delete("alt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Load("alt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestVaultRejects(t *testing.T) {
	keyring.MockInit()
	v := New("", "")
	if err := v.Save("main", engine.Seeds{Client: "c"}); !errors.Is(err, engine.ErrEmptySeed) {
		t.Fatalf("Save without server seed: err = %v", err)
	}
	if err := v.Save("  ", engine.Seeds{Server: "s"}); err == nil {
		t.Fatal("Save without profile should fail")
	}
}

func TestServerSeedHash(t *testing.T) {
	const want = "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
	if got := ServerSeedHash(engine.Seeds{Server: "secret"}); got != want {
		t.Fatalf("ServerSeedHash = %s, want %s", got, want)
	}
}
