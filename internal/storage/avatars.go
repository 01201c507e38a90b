// Package storage holds uploaded avatar objects on disk under
// <data>/avatars/<team>/<user>, with a metadata sidecar per object.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no avatar exists for a user.
var ErrNotFound = errors.New("avatar not found")

// maxAvatarBytes caps a single upload.
const maxAvatarBytes = 5 << 20

// safeSegment guards against path traversal in team and user IDs.
var safeSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Metadata describes one stored avatar object.
type Metadata struct {
	Key         string    `json:"key"` // changes on every upload, used for cache busting
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AvatarStore stores avatars beneath a data directory.
type AvatarStore struct {
	root string
}

// NewAvatarStore creates the store's directory tree under dataDir.
func NewAvatarStore(dataDir string) (*AvatarStore, error) {
	root := filepath.Join(dataDir, "avatars")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	return &AvatarStore{root: root}, nil
}

func (s *AvatarStore) paths(teamID, userID string) (obj, meta string, err error) {
	if !safeSegment.MatchString(teamID) || !safeSegment.MatchString(userID) {
		return "", "", fmt.Errorf("invalid object path %q/%q", teamID, userID)
	}
	obj = filepath.Join(s.root, teamID, userID)
	return obj, obj + ".json", nil
}

// Put writes an avatar and its metadata, replacing any previous object.
// Returns the new metadata, whose Key changes on every write.
func (s *AvatarStore) Put(teamID, userID string, data []byte, contentType string) (*Metadata, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty avatar body")
	}
	if len(data) > maxAvatarBytes {
		return nil, fmt.Errorf("avatar exceeds %d bytes", maxAvatarBytes)
	}

	obj, metaPath, err := s.paths(teamID, userID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(obj), 0755); err != nil {
		return nil, fmt.Errorf("create team dir: %w", err)
	}

	sum := sha256.Sum256(data)
	meta := &Metadata{
		Key:         uuid.NewString(),
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
	}

	// Object first, sidecar second; a crash between the two leaves the old
	// metadata pointing at the new bytes, which Get tolerates.
	tmp := obj + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("write avatar: %w", err)
	}
	if err := os.Rename(tmp, obj); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("rename avatar: %w", err)
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaData, 0644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return meta, nil
}

// Get returns the avatar bytes and metadata for a user.
func (s *AvatarStore) Get(teamID, userID string) ([]byte, *Metadata, error) {
	obj, metaPath, err := s.paths(teamID, userID)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(obj)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("read avatar: %w", err)
	}

	meta := &Metadata{ContentType: "application/octet-stream"}
	if metaData, err := os.ReadFile(metaPath); err == nil {
		json.Unmarshal(metaData, meta)
	}
	return data, meta, nil
}

// Delete removes a user's avatar and metadata. Missing objects are not an
// error.
func (s *AvatarStore) Delete(teamID, userID string) error {
	obj, metaPath, err := s.paths(teamID, userID)
	if err != nil {
		return err
	}
	if err := os.Remove(obj); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove avatar: %w", err)
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove metadata: %w", err)
	}
	return nil
}

// URL returns the path clients fetch this object from, keyed for cache
// busting.
func (s *AvatarStore) URL(teamID, userID string, meta *Metadata) string {
	return fmt.Sprintf("/v1/teams/%s/storage/avatars/%s?v=%s", teamID, userID, meta.Key)
}
