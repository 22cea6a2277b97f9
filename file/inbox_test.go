package file

import (
	"path/filepath"
	"testing"
)

func TestUniqueInboxPathSuffixesOnCollision(t *testing.T) {
	dir := t.TempDir()

	first, err := uniqueInboxPath(dir, "report.txt")
	if err != nil {
		t.Fatalf("uniqueInboxPath (first): %v", err)
	}
	if first != filepath.Join(dir, "report.txt") {
		t.Fatalf("first candidate = %q, want unsuffixed report.txt", first)
	}
	writeTempFile(t, dir, "report.txt", []byte("one"))

	second, err := uniqueInboxPath(dir, "report.txt")
	if err != nil {
		t.Fatalf("uniqueInboxPath (second): %v", err)
	}
	if second != filepath.Join(dir, "report (1).txt") {
		t.Fatalf("second candidate = %q, want report (1).txt", second)
	}
	writeTempFile(t, dir, "report (1).txt", []byte("two"))

	third, err := uniqueInboxPath(dir, "report.txt")
	if err != nil {
		t.Fatalf("uniqueInboxPath (third): %v", err)
	}
	if third != filepath.Join(dir, "report (2).txt") {
		t.Fatalf("third candidate = %q, want report (2).txt", third)
	}
}

func TestUniqueInboxPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()

	path, err := uniqueInboxPath(dir, "../../etc/passwd")
	if err != nil {
		t.Fatalf("uniqueInboxPath: %v", err)
	}
	// filepath.Base strips the traversal before it ever reaches the inbox.
	if path != filepath.Join(dir, "passwd") {
		t.Fatalf("path = %q, want %q", path, filepath.Join(dir, "passwd"))
	}
}

func TestRequireWithinInboxRejectsEscape(t *testing.T) {
	dir := t.TempDir()

	if err := requireWithinInbox(dir, filepath.Join(dir, "..", "outside.txt")); err != ErrPathOutsideInbox {
		t.Errorf("err = %v, want ErrPathOutsideInbox", err)
	}
	if err := requireWithinInbox(dir, filepath.Join(dir, "inside.txt")); err != nil {
		t.Errorf("err = %v, want nil for a path under inboxDir", err)
	}
}

// TestDuplicateFileNamesGetDistinctInboxPaths drives two whole transfers of
// differently-sourced files sharing a name through the same receiver, per
// spec.md §8's "Inbox name collision" property: the second transfer lands
// at "name (1).ext", not atop the first.
func TestDuplicateFileNamesGetDistinctInboxPaths(t *testing.T) {
	sender, receiver, _, _ := newLinkedEngines(t)

	srcDir := t.TempDir()
	firstSrc := writeTempFile(t, srcDir, "dup.txt", patternBytes(500))

	transferID1, err := sender.Announce(firstSrc)
	if err != nil {
		t.Fatalf("Announce (first): %v", err)
	}
	if err := receiver.Accept("sender", transferID1); err != nil {
		t.Fatalf("Accept (first): %v", err)
	}
	firstCompletions := drainCompletions(t, receiver)
	if len(firstCompletions) != 1 || !firstCompletions[0].Success {
		t.Fatalf("first completions = %+v, want one success", firstCompletions)
	}

	secondSrcDir := t.TempDir()
	secondSrc := writeTempFile(t, secondSrcDir, "dup.txt", patternBytes(900))

	transferID2, err := sender.Announce(secondSrc)
	if err != nil {
		t.Fatalf("Announce (second): %v", err)
	}
	if err := receiver.Accept("sender", transferID2); err != nil {
		t.Fatalf("Accept (second): %v", err)
	}
	secondCompletions := drainCompletions(t, receiver)
	if len(secondCompletions) != 1 || !secondCompletions[0].Success {
		t.Fatalf("second completions = %+v, want one success", secondCompletions)
	}

	if firstCompletions[0].Path == secondCompletions[0].Path {
		t.Fatalf("both transfers landed at the same path: %q", firstCompletions[0].Path)
	}
	wantSecond := filepath.Join(filepath.Dir(firstCompletions[0].Path), "dup (1).txt")
	if secondCompletions[0].Path != wantSecond {
		t.Errorf("second path = %q, want %q", secondCompletions[0].Path, wantSecond)
	}
}
