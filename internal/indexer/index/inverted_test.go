package index

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/websearch/internal/indexer/kvlog"
)

func openIndex(t *testing.T, path string) *InvertedIndex {
	t.Helper()
	ix, err := Open("body", path, kvlog.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestAddEntryAndGetPostings(t *testing.T) {
	ix := openIndex(t, filepath.Join(t.TempDir(), "body.kv"))

	if err := ix.AddEntry("kong", 3, []int{4, 9}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := ix.AddEntry("kong", 1, []int{2}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	got, err := ix.GetPostings("kong")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	want := PostingList{
		{DocID: 1, Frequency: 1, Positions: []int{2}},
		{DocID: 3, Frequency: 2, Positions: []int{4, 9}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("postings = %+v, want %+v", got, want)
	}
	for _, p := range got {
		if p.Frequency != len(p.Positions) {
			t.Errorf("doc %d: frequency %d != %d positions", p.DocID, p.Frequency, len(p.Positions))
		}
	}
	if got.MaxFrequency() != 2 {
		t.Errorf("MaxFrequency = %d, want 2", got.MaxFrequency())
	}
}

func TestAddEntryReplacesSameDocument(t *testing.T) {
	ix := openIndex(t, filepath.Join(t.TempDir(), "body.kv"))
	ix.AddEntry("web", 5, []int{1, 2, 3})
	ix.AddEntry("web", 5, []int{7})

	got, _ := ix.GetPostings("web")
	if len(got) != 1 || got[0].Frequency != 1 || !reflect.DeepEqual(got[0].Positions, []int{7}) {
		t.Errorf("postings = %+v", got)
	}
}

func TestGetPostingsMissingTerm(t *testing.T) {
	ix := openIndex(t, filepath.Join(t.TempDir(), "body.kv"))
	got, err := ix.GetPostings("absent")
	if err != nil {
		t.Fatalf("GetPostings: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("postings = %#v, want empty list", got)
	}
}

func TestDeleteAndPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "title.kv")
	ix, err := Open("title", path, kvlog.Options{SyncWrites: true})
	if err != nil {
		t.Fatal(err)
	}
	ix.AddEntry("hong", 1, []int{3})
	ix.AddEntry("kong", 1, []int{4})
	if err := ix.Delete("hong"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ix.Close()

	reopened := openIndex(t, path)
	if got := reopened.Terms(); !reflect.DeepEqual(got, []string{"kong"}) {
		t.Errorf("Terms after reopen = %v", got)
	}
	p, _ := reopened.GetPostings("kong")
	if pst, ok := p.Find(1); !ok || pst.Positions[0] != 4 {
		t.Errorf("Find(1) = %+v, %v", pst, ok)
	}
}

func TestAddEntryRejectsEmpty(t *testing.T) {
	ix := openIndex(t, filepath.Join(t.TempDir(), "body.kv"))
	if err := ix.AddEntry("", 1, []int{1}); err == nil {
		t.Error("expected error for empty term")
	}
	if err := ix.AddEntry("x", 1, nil); err == nil {
		t.Error("expected error for empty positions")
	}
}
