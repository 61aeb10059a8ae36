package artifact

import "fmt"

// Key layout for artifact data stored in a storage.Backend's flat
// key/value namespace. Metadata rows are prefixed per-session so
// ListSession can use a single backend.List prefix scan.

func metaPrefix(sessionID string) string {
	return fmt.Sprintf("artifact/meta/%s/", sessionID)
}

func metaKey(sessionID, artifactID string) string {
	return metaPrefix(sessionID) + artifactID
}

func seqKey(sessionID, logicalName string) string {
	return fmt.Sprintf("artifact/seq/%s/%s", sessionID, logicalName)
}

func contentKey(hash string) string {
	return fmt.Sprintf("artifact/content/%s", hash)
}

func chunkKey(hash string, index int) string {
	return fmt.Sprintf("artifact/content/%s/chunk/%d", hash, index)
}

func refKey(hash string) string {
	return fmt.Sprintf("artifact/refcount/%s", hash)
}
