package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// uniqueInboxPath resolves the final destination for fileName under
// inboxDir, appending " (k)" before the extension for the smallest k >= 1
// that avoids a collision, per spec.md §4.H step 4 and §8's "Inbox name
// collision" property. fileName is attacker-controlled (it comes straight
// off a peer's FileAnnounce), so only its base name is trusted and the
// resolved candidate is always checked against inboxDir before use.
func uniqueInboxPath(inboxDir, fileName string) (string, error) {
	name := filepath.Base(fileName)
	candidate := filepath.Join(inboxDir, name)
	if err := requireWithinInbox(inboxDir, candidate); err != nil {
		return "", err
	}
	if !exists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for k := 1; ; k++ {
		versioned := fmt.Sprintf("%s (%d)%s", base, k, ext)
		candidate = filepath.Join(inboxDir, versioned)
		if !exists(candidate) {
			return candidate, nil
		}
	}
}

// requireWithinInbox reports ErrPathOutsideInbox if candidate would not
// resolve to a location under inboxDir.
func requireWithinInbox(inboxDir, candidate string) error {
	rel, err := filepath.Rel(inboxDir, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrPathOutsideInbox
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
