package memstore

import (
	"context"
	"testing"

	"github.com/ccnxgo/ccnsync/ccnsync"
)

func openTestLevelStore(t *testing.T, onAdd func(ccnsync.Name, ccnsync.Accession)) *LevelStore {
	t.Helper()
	if onAdd == nil {
		onAdd = func(ccnsync.Name, ccnsync.Accession) {}
	}
	ls, err := OpenLevelStore(t.TempDir(), onAdd)
	if err != nil {
		t.Fatalf("OpenLevelStore: %v", err)
	}
	t.Cleanup(func() { ls.Close() })
	return ls
}

func TestLevelStoreLocalStoreAndLookup(t *testing.T) {
	ls := openTestLevelStore(t, nil)
	obj := ccnsync.ContentObject{Name: ccnsync.Name{[]byte("a"), []byte("b")}, Body: []byte("payload")}
	if err := ls.LocalStore(context.Background(), obj); err != nil {
		t.Fatalf("LocalStore: %v", err)
	}
	got, ok, err := ls.Lookup(context.Background(), obj.Name)
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if string(got.Body) != "payload" {
		t.Fatalf("Lookup body = %q, want %q", got.Body, "payload")
	}
}

func TestLevelStoreLookupMiss(t *testing.T) {
	ls := openTestLevelStore(t, nil)
	_, ok, err := ls.Lookup(context.Background(), ccnsync.Name{[]byte("missing")})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatalf("Lookup should miss cleanly on an absent name")
	}
}

func TestLevelStoreAccessionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ls1, err := OpenLevelStore(dir, func(ccnsync.Name, ccnsync.Accession) {})
	if err != nil {
		t.Fatalf("OpenLevelStore: %v", err)
	}
	if err := ls1.LocalStore(context.Background(), ccnsync.ContentObject{Name: ccnsync.Name{[]byte("first")}}); err != nil {
		t.Fatalf("LocalStore: %v", err)
	}
	if err := ls1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var lastAcc ccnsync.Accession
	ls2, err := OpenLevelStore(dir, func(_ ccnsync.Name, acc ccnsync.Accession) { lastAcc = acc })
	if err != nil {
		t.Fatalf("reopen OpenLevelStore: %v", err)
	}
	defer ls2.Close()
	if err := ls2.LocalStore(context.Background(), ccnsync.ContentObject{Name: ccnsync.Name{[]byte("second")}}); err != nil {
		t.Fatalf("LocalStore after reopen: %v", err)
	}
	if ls2.AccessionCompare(lastAcc, encodeAccession(2)) != 0 {
		t.Fatalf("first accession after reopen = %x, want 2 (accession counter should persist)", lastAcc)
	}

	count, err := ls2.Enumerate(context.Background(), ccnsync.Name{})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if count != 2 {
		t.Fatalf("Enumerate after reopen saw %d names, want 2 (accession counter should persist)", count)
	}
}

func TestLevelStoreEnumerateFiltersByPrefix(t *testing.T) {
	ls := openTestLevelStore(t, nil)
	ls.LocalStore(context.Background(), ccnsync.ContentObject{Name: ccnsync.Name{[]byte("data"), []byte("x")}})
	ls.LocalStore(context.Background(), ccnsync.ContentObject{Name: ccnsync.Name{[]byte("other"), []byte("y")}})

	var seen []string
	ls.onAdd = func(n ccnsync.Name, acc ccnsync.Accession) { seen = append(seen, n.String()) }
	count, err := ls.Enumerate(context.Background(), ccnsync.Name{[]byte("data")})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if count != 1 || seen[0] != "/data/x" {
		t.Fatalf("Enumerate under prefix /data = %v (count %d), want exactly [/data/x]", seen, count)
	}
}
