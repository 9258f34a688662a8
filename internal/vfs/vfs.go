// Package vfs presents a folder view over a flat object key space.
//
// The emulator is stateless: all tree structure is derived at read time
// from prefix+delimiter listings, and folder operations are sequences of
// flat-object copies and deletes. Multi-object operations are best-effort
// with per-item error accumulation; the backing store offers no cross-key
// atomicity and neither does this layer.
package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arencloud/iris/internal/storage"
)

// Delimiter simulates directory boundaries in object keys.
const Delimiter = "/"

// listPageSize bounds one provider round trip; full enumerations loop
// over continuation tokens until exhausted.
const listPageSize = 1000

var ErrEmptyName = errors.New("vfs: name is empty after trimming delimiters")

// Store is the flat object API the emulator runs on. *storage.Client
// satisfies it; tests use an in-memory fake.
type Store interface {
	ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*storage.ListPage, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	DeleteBatch(ctx context.Context, keys []string) ([]storage.KeyError, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Emulator struct {
	store Store
}

func New(store Store) *Emulator { return &Emulator{store: store} }

type File struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Folder is synthesized from a common-prefix boundary; it has no identity
// beyond its path string.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Listing struct {
	Files         []File   `json:"files"`
	Folders       []Folder `json:"folders"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
	HasMore       bool     `json:"hasMore"`
}

// List returns one page of the folder view under prefix.
//
// Common prefixes become Folder entries. Objects become File entries
// except the prefix's own marker, and any object whose remaining name
// still contains the delimiter — deeper descendants must not leak into a
// shallower listing even if the provider returns them.
func (e *Emulator) List(ctx context.Context, prefix, pageToken string) (*Listing, error) {
	page, err := e.store.ListPage(ctx, prefix, Delimiter, pageToken, listPageSize)
	if err != nil {
		return nil, err
	}
	l := &Listing{Files: []File{}, Folders: []Folder{}}
	for _, cp := range page.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), Delimiter)
		if name == "" {
			continue
		}
		l.Folders = append(l.Folders, Folder{Name: name, Path: cp})
	}
	for _, o := range page.Objects {
		if o.Key == prefix || o.Key == prefix+Delimiter {
			continue
		}
		name := strings.TrimPrefix(o.Key, prefix)
		if strings.Contains(name, Delimiter) {
			continue
		}
		l.Files = append(l.Files, File{Name: name, Path: o.Key, Size: o.Size, LastModified: o.LastModified})
	}
	l.NextPageToken = page.NextToken
	l.HasMore = page.Truncated
	return l, nil
}

// CreateFolder writes a zero-byte marker at parent+name+"/". It creates
// no nested structure and leaves pre-existing objects untouched;
// concurrent identical calls race harmlessly.
func (e *Emulator) CreateFolder(ctx context.Context, parent, name string) (string, error) {
	n := sanitizeName(name)
	if n == "" {
		return "", ErrEmptyName
	}
	key := parent + n + Delimiter
	if err := e.store.Put(ctx, key, bytes.NewReader(nil), ""); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes a file, or a folder and everything under it.
//
// A key is a folder iff it ends in the delimiter or at least one object
// exists under key+"/". Folder deletion enumerates every object under the
// prefix (the marker included), batch-deletes them, then best-effort
// deletes the marker in case enumeration missed it. Enumeration and
// deletion are not transactional: objects created in between survive, and
// per-key delete failures do not fail the operation.
func (e *Emulator) Delete(ctx context.Context, key string) (int, error) {
	folder, err := e.isFolder(ctx, key)
	if err != nil {
		return 0, err
	}
	if !folder {
		if err := e.store.Delete(ctx, key); err != nil {
			return 0, err
		}
		return 1, nil
	}
	prefix := asPrefix(key)
	objs, err := e.listAll(ctx, prefix)
	if err != nil {
		return 0, err
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	if len(keys) > 0 {
		if _, err := e.store.DeleteBatch(ctx, keys); err != nil {
			return 0, err
		}
	}
	if err := e.store.Delete(ctx, prefix); err != nil && !storage.IsNotFound(err) {
		return len(keys), err
	}
	return len(keys), nil
}

// Rename gives oldPath a new final segment within its parent.
//
// Files are copy-then-delete. Folders enumerate everything under the old
// prefix, copy each object under the new prefix, then batch-delete the
// originals. A failure between the copy and delete phases leaves both
// prefixes populated; that duplicated-data outcome is surfaced as the
// returned error and never reconciled here. Renaming a folder into a
// prefix of itself is not guarded at this layer; Move carries the check.
func (e *Emulator) Rename(ctx context.Context, oldPath, newName string, isFolder bool) (string, error) {
	name := sanitizeName(newName)
	if name == "" {
		return "", ErrEmptyName
	}
	newPath := parentOf(oldPath) + name
	if isFolder {
		newPath += Delimiter
	}
	if !isFolder {
		if err := e.store.Copy(ctx, oldPath, newPath); err != nil {
			return "", err
		}
		if err := e.store.Delete(ctx, oldPath); err != nil {
			return "", err
		}
		return newPath, nil
	}
	oldPrefix := asPrefix(oldPath)
	if err := e.relocate(ctx, oldPrefix, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

// relocate copies every object under srcPrefix to dstPrefix and deletes
// the originals, handling the marker best-effort when enumeration missed
// it. Shared by Rename and Move.
func (e *Emulator) relocate(ctx context.Context, srcPrefix, dstPrefix string) error {
	objs, err := e.listAll(ctx, srcPrefix)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(objs))
	markerSeen := false
	for _, o := range objs {
		if o.Key == srcPrefix {
			markerSeen = true
		}
		dst := dstPrefix + strings.TrimPrefix(o.Key, srcPrefix)
		if err := e.store.Copy(ctx, o.Key, dst); err != nil {
			return fmt.Errorf("copy %s: %w (objects copied so far remain at both locations)", o.Key, err)
		}
		keys = append(keys, o.Key)
	}
	if len(keys) > 0 {
		if _, err := e.store.DeleteBatch(ctx, keys); err != nil {
			return fmt.Errorf("delete originals under %s: %w (copies exist at both locations)", srcPrefix, err)
		}
	}
	if !markerSeen {
		// marker may exist without showing up in the enumeration window
		if err := e.store.Copy(ctx, srcPrefix, dstPrefix); err == nil {
			_ = e.store.Delete(ctx, srcPrefix)
		}
	}
	return nil
}

// ItemError is one failed item of a batch move.
type ItemError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type MoveResult struct {
	Moved  int         `json:"moved"`
	Errors []ItemError `json:"errors,omitempty"`
}

// OK reports whether the batch counts as a success: at least one item
// moved, or nothing was asked to move and nothing failed.
func (r *MoveResult) OK() bool {
	return r.Moved > 0 || len(r.Errors) == 0
}

// Move relocates a batch of files and folders under destPrefix. Items are
// independent: a rejected or failed item is recorded and its siblings are
// still attempted. A folder is rejected when the destination equals its
// own path or lies inside it; nothing is mutated for a rejected item.
func (e *Emulator) Move(ctx context.Context, items []string, destPrefix string) *MoveResult {
	dest := normalizePrefix(destPrefix)
	res := &MoveResult{}
	for _, item := range items {
		if item == "" {
			continue
		}
		if err := e.moveOne(ctx, item, dest); err != nil {
			res.Errors = append(res.Errors, ItemError{Path: item, Message: err.Error()})
			continue
		}
		res.Moved++
	}
	return res
}

func (e *Emulator) moveOne(ctx context.Context, item, dest string) error {
	folder, err := e.isFolder(ctx, item)
	if err != nil {
		return err
	}
	if folder {
		srcPrefix := asPrefix(item)
		dstPrefix := dest + baseName(item) + Delimiter
		if dstPrefix == srcPrefix {
			return errors.New("source and destination are the same")
		}
		if strings.HasPrefix(dest, srcPrefix) {
			return errors.New("cannot move a folder into itself or its descendant")
		}
		return e.relocate(ctx, srcPrefix, dstPrefix)
	}
	dstKey := dest + baseName(item)
	if dstKey == item {
		return errors.New("source and destination are the same")
	}
	if err := e.store.Copy(ctx, item, dstKey); err != nil {
		return err
	}
	return e.store.Delete(ctx, item)
}

// isFolder applies the dual folder definition: a trailing delimiter, or
// at least one key under key+"/".
func (e *Emulator) isFolder(ctx context.Context, key string) (bool, error) {
	if strings.HasSuffix(key, Delimiter) {
		return true, nil
	}
	page, err := e.store.ListPage(ctx, key+Delimiter, "", "", 1)
	if err != nil {
		return false, err
	}
	return len(page.Objects) > 0 || len(page.CommonPrefixes) > 0, nil
}

// listAll enumerates every object under prefix, looping over continuation
// tokens until the provider reports the listing exhausted.
func (e *Emulator) listAll(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	token := ""
	for {
		page, err := e.store.ListPage(ctx, prefix, "", token, listPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Objects...)
		if !page.Truncated || page.NextToken == "" {
			return out, nil
		}
		token = page.NextToken
	}
}

func sanitizeName(name string) string {
	return strings.Trim(strings.TrimSpace(name), Delimiter)
}

// asPrefix guarantees exactly one trailing delimiter.
func asPrefix(key string) string {
	return strings.TrimSuffix(key, Delimiter) + Delimiter
}

// normalizePrefix keeps "" (the root) as-is and gives anything else a
// trailing delimiter.
func normalizePrefix(p string) string {
	if p == "" {
		return ""
	}
	return asPrefix(p)
}

// parentOf returns the containing prefix of a file key or folder path,
// trailing delimiter included ("" for top-level entries).
func parentOf(path string) string {
	p := strings.TrimSuffix(path, Delimiter)
	idx := strings.LastIndex(p, Delimiter)
	if idx < 0 {
		return ""
	}
	return p[:idx+1]
}

// baseName returns the final path segment of a file key or folder path.
func baseName(path string) string {
	p := strings.TrimSuffix(path, Delimiter)
	idx := strings.LastIndex(p, Delimiter)
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}
