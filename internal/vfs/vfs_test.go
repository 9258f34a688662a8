package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/arencloud/iris/internal/storage"
)

// fakeStore is an in-memory flat key space with S3-style delimiter
// listing and pagination.
type fakeStore struct {
	objects  map[string][]byte
	modified map[string]time.Time
	pageSize int              // 0 = honor caller's maxKeys
	copyErr  map[string]error // srcKey -> error
	listErr  error
}

func newFakeStore(keys ...string) *fakeStore {
	f := &fakeStore{objects: map[string][]byte{}, modified: map[string]time.Time{}, copyErr: map[string]error{}}
	for _, k := range keys {
		f.objects[k] = []byte("data:" + k)
		f.modified[k] = time.Unix(1700000000, 0)
	}
	return f
}

func (f *fakeStore) sortedKeys() []string {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStore) ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*storage.ListPage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	limit := int(maxKeys)
	if f.pageSize > 0 && (limit == 0 || f.pageSize < limit) {
		limit = f.pageSize
	}
	page := &storage.ListPage{}
	seen := map[string]bool{}
	count := 0
	for _, k := range f.sortedKeys() {
		if !strings.HasPrefix(k, prefix) || (token != "" && k <= token) {
			continue
		}
		if limit > 0 && count >= limit {
			page.Truncated = true
			break
		}
		rest := k[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+1]
				if !seen[cp] {
					seen[cp] = true
					page.CommonPrefixes = append(page.CommonPrefixes, cp)
					count++
				}
				page.NextToken = k
				continue
			}
		}
		page.Objects = append(page.Objects, storage.ObjectInfo{Key: k, Size: int64(len(f.objects[k])), LastModified: f.modified[k]})
		page.NextToken = k
		count++
	}
	if !page.Truncated {
		page.NextToken = ""
	}
	return page, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.modified[key] = time.Now()
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	// S3 DeleteObject on a missing key succeeds
	delete(f.objects, key)
	delete(f.modified, key)
	return nil
}

func (f *fakeStore) DeleteBatch(ctx context.Context, keys []string) ([]storage.KeyError, error) {
	for _, k := range keys {
		delete(f.objects, k)
		delete(f.modified, k)
	}
	return nil, nil
}

func (f *fakeStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err, ok := f.copyErr[srcKey]; ok {
		return err
	}
	data, ok := f.objects[srcKey]
	if !ok {
		return fmt.Errorf("NoSuchKey: %s", srcKey)
	}
	f.objects[dstKey] = append([]byte(nil), data...)
	f.modified[dstKey] = time.Now()
	return nil
}

func (f *fakeStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (f *fakeStore) has(key string) bool { _, ok := f.objects[key]; return ok }

func folderNames(l *Listing) []string {
	out := make([]string, len(l.Folders))
	for i, f := range l.Folders {
		out[i] = f.Name
	}
	return out
}

func fileNames(l *Listing) []string {
	out := make([]string, len(l.Files))
	for i, f := range l.Files {
		out[i] = f.Name
	}
	return out
}

func TestListRootAndSubfolder(t *testing.T) {
	f := newFakeStore("docs/", "docs/readme.txt", "images/cat.png")
	e := New(f)
	ctx := context.Background()

	root, err := e.List(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := folderNames(root); len(got) != 2 || got[0] != "docs" || got[1] != "images" {
		t.Fatalf("root folders = %v, want [docs images]", got)
	}
	if len(root.Files) != 0 {
		t.Fatalf("root files = %v, want none", fileNames(root))
	}

	docs, err := e.List(ctx, "docs/", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := fileNames(docs); len(got) != 1 || got[0] != "readme.txt" {
		t.Fatalf("docs files = %v, want [readme.txt]", got)
	}
	if len(docs.Folders) != 0 {
		t.Fatalf("docs folders = %v, want none", folderNames(docs))
	}
}

// stubStore returns a canned page regardless of the request, simulating a
// provider answer that was not shaped by the delimiter mechanism.
type stubStore struct {
	fakeStore
	page *storage.ListPage
}

func (s *stubStore) ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*storage.ListPage, error) {
	return s.page, nil
}

func TestListNeverLeaksDeepDescendants(t *testing.T) {
	s := &stubStore{page: &storage.ListPage{Objects: []storage.ObjectInfo{
		{Key: "a/top.txt"},
		{Key: "a/deep/leaf.txt"},
		{Key: "a/deep/deeper/leaf2.txt"},
	}}}
	l, err := New(s).List(context.Background(), "a/", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range l.Files {
		if strings.Contains(f.Name, Delimiter) {
			t.Fatalf("descendant %q leaked into listing", f.Name)
		}
	}
	if len(l.Files) != 1 || l.Files[0].Name != "top.txt" {
		t.Fatalf("files = %v, want [top.txt]", fileNames(l))
	}
}

func TestListSuppressesOwnMarker(t *testing.T) {
	f := newFakeStore("docs/", "docs/a.txt")
	l, err := New(f).List(context.Background(), "docs/", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := fileNames(l); len(got) != 1 || got[0] != "a.txt" {
		t.Fatalf("files = %v, the folder's own marker must not be listed", got)
	}
}

func TestListPagination(t *testing.T) {
	f := newFakeStore("f1", "f2", "f3", "f4", "f5")
	f.pageSize = 2
	e := New(f)
	ctx := context.Background()
	var names []string
	token := ""
	pages := 0
	for {
		l, err := e.List(ctx, "", token)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, fileNames(l)...)
		pages++
		if !l.HasMore {
			break
		}
		token = l.NextPageToken
	}
	if pages < 3 {
		t.Fatalf("expected at least 3 pages, got %d", pages)
	}
	if len(names) != 5 {
		t.Fatalf("collected %v, want all 5 files", names)
	}
}

func TestCreateFolderThenList(t *testing.T) {
	f := newFakeStore()
	e := New(f)
	ctx := context.Background()
	key, err := e.CreateFolder(ctx, "", "reports")
	if err != nil {
		t.Fatal(err)
	}
	if key != "reports/" {
		t.Fatalf("marker key = %q, want reports/", key)
	}
	if len(f.objects["reports/"]) != 0 {
		t.Fatalf("marker must be zero bytes")
	}
	l, err := e.List(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := folderNames(l); len(got) != 1 || got[0] != "reports" {
		t.Fatalf("folders = %v, want exactly [reports]", got)
	}
}

func TestCreateFolderSanitizesName(t *testing.T) {
	f := newFakeStore()
	e := New(f)
	ctx := context.Background()
	key, err := e.CreateFolder(ctx, "a/", " /logs/ ")
	if err != nil {
		t.Fatal(err)
	}
	if key != "a/logs/" {
		t.Fatalf("key = %q, want a/logs/", key)
	}
	if _, err := e.CreateFolder(ctx, "", "///"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	f := newFakeStore("a.txt", "b.txt")
	n, err := New(f).Delete(context.Background(), "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || f.has("a.txt") || !f.has("b.txt") {
		t.Fatalf("expected only a.txt removed")
	}
}

func TestDeleteFolderRemovesEverything(t *testing.T) {
	f := newFakeStore("docs/", "docs/a.txt", "docs/sub/b.txt", "other/c.txt")
	e := New(f)
	ctx := context.Background()
	if _, err := e.Delete(ctx, "docs/"); err != nil {
		t.Fatal(err)
	}
	for k := range f.objects {
		if strings.HasPrefix(k, "docs/") {
			t.Fatalf("key %q survived folder delete", k)
		}
	}
	l, err := e.List(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range folderNames(l) {
		if name == "docs" {
			t.Fatalf("parent listing still shows deleted folder")
		}
	}
	if !f.has("other/c.txt") {
		t.Fatalf("sibling object must survive")
	}
}

func TestDeleteMarkerOnlyFolder(t *testing.T) {
	f := newFakeStore("docs/")
	n, err := New(f).Delete(context.Background(), "docs/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed %d objects, want exactly 1", n)
	}
	if len(f.objects) != 0 {
		t.Fatalf("store not empty: %v", f.sortedKeys())
	}
}

func TestDeleteDetectsFolderWithoutTrailingDelimiter(t *testing.T) {
	// no marker object, only children: "docs" must still resolve as folder
	f := newFakeStore("docs/a.txt", "docs/b.txt")
	n, err := New(f).Delete(context.Background(), "docs")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(f.objects) != 0 {
		t.Fatalf("expected both children removed, got n=%d store=%v", n, f.sortedKeys())
	}
}

func TestRenameFile(t *testing.T) {
	f := newFakeStore("docs/old.txt")
	newPath, err := New(f).Rename(context.Background(), "docs/old.txt", "new.txt", false)
	if err != nil {
		t.Fatal(err)
	}
	if newPath != "docs/new.txt" {
		t.Fatalf("newPath = %q", newPath)
	}
	if f.has("docs/old.txt") || !f.has("docs/new.txt") {
		t.Fatalf("rename did not relocate the object")
	}
}

func TestRenameFolder(t *testing.T) {
	f := newFakeStore("A/", "A/x", "A/y/z")
	newPath, err := New(f).Rename(context.Background(), "A/", "B", true)
	if err != nil {
		t.Fatal(err)
	}
	if newPath != "B/" {
		t.Fatalf("newPath = %q", newPath)
	}
	for _, want := range []string{"B/", "B/x", "B/y/z"} {
		if !f.has(want) {
			t.Fatalf("missing %q after rename", want)
		}
	}
	for _, gone := range []string{"A/", "A/x", "A/y/z"} {
		if f.has(gone) {
			t.Fatalf("%q still present after rename", gone)
		}
	}
}

func TestRenameEmptyName(t *testing.T) {
	f := newFakeStore("a.txt")
	if _, err := New(f).Rename(context.Background(), "a.txt", " / ", false); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestRenameFolderPartialFailureLeavesDuplicates(t *testing.T) {
	f := newFakeStore("A/a1", "A/a2")
	f.copyErr["A/a2"] = errors.New("transport reset")
	_, err := New(f).Rename(context.Background(), "A/", "B", true)
	if err == nil {
		t.Fatal("expected error from interrupted copy phase")
	}
	// first object was copied, nothing was deleted: both prefixes populated
	if !f.has("A/a1") || !f.has("A/a2") || !f.has("B/a1") {
		t.Fatalf("expected duplicated data after interruption, store=%v", f.sortedKeys())
	}
}

func TestMoveRejectsIntoSelf(t *testing.T) {
	f := newFakeStore("docs/", "docs/a.txt")
	before := f.sortedKeys()
	res := New(f).Move(context.Background(), []string{"docs/"}, "docs/sub/")
	if res.Moved != 0 || len(res.Errors) != 1 {
		t.Fatalf("moved=%d errors=%v, want per-item rejection", res.Moved, res.Errors)
	}
	if !strings.Contains(res.Errors[0].Message, "into itself") {
		t.Fatalf("unexpected error message %q", res.Errors[0].Message)
	}
	if res.OK() {
		t.Fatalf("zero moved with errors must not be a success")
	}
	after := f.sortedKeys()
	if strings.Join(before, ",") != strings.Join(after, ",") {
		t.Fatalf("rejected move mutated the store: %v -> %v", before, after)
	}
}

func TestMoveRejectsSameDestination(t *testing.T) {
	f := newFakeStore("a/b.txt")
	res := New(f).Move(context.Background(), []string{"a/b.txt"}, "a/")
	if res.Moved != 0 || len(res.Errors) != 1 {
		t.Fatalf("moved=%d errors=%v", res.Moved, res.Errors)
	}
	if !f.has("a/b.txt") {
		t.Fatalf("rejected move must not touch the object")
	}
}

func TestMoveBatchContinuesPastFailures(t *testing.T) {
	f := newFakeStore("a.txt", "b.txt")
	f.copyErr["a.txt"] = errors.New("access denied")
	res := New(f).Move(context.Background(), []string{"a.txt", "b.txt"}, "dst/")
	if res.Moved != 1 {
		t.Fatalf("moved = %d, want the healthy sibling moved", res.Moved)
	}
	if len(res.Errors) != 1 || res.Errors[0].Path != "a.txt" {
		t.Fatalf("errors = %v", res.Errors)
	}
	if !res.OK() {
		t.Fatalf("one item moved counts as success")
	}
	if !f.has("dst/b.txt") || f.has("b.txt") {
		t.Fatalf("b.txt not relocated")
	}
	if !f.has("a.txt") {
		t.Fatalf("failed item must keep its source object")
	}
}

func TestMoveFolder(t *testing.T) {
	f := newFakeStore("src/", "src/one", "src/deep/two")
	res := New(f).Move(context.Background(), []string{"src/"}, "archive/")
	if res.Moved != 1 || len(res.Errors) != 0 {
		t.Fatalf("moved=%d errors=%v", res.Moved, res.Errors)
	}
	for _, want := range []string{"archive/src/", "archive/src/one", "archive/src/deep/two"} {
		if !f.has(want) {
			t.Fatalf("missing %q after move, store=%v", want, f.sortedKeys())
		}
	}
	for k := range f.objects {
		if strings.HasPrefix(k, "src/") {
			t.Fatalf("source key %q survived move", k)
		}
	}
}

func TestFolderTree(t *testing.T) {
	f := newFakeStore("a/", "a/x.txt", "a/b/y.txt", "c/z.txt")
	nodes, err := New(f).FolderTree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	type flat struct {
		name  string
		path  string
		level int
	}
	want := []flat{{"a", "a/", 0}, {"b", "a/b/", 1}, {"c", "c/", 0}}
	if len(nodes) != len(want) {
		t.Fatalf("nodes = %v", nodes)
	}
	for i, w := range want {
		if nodes[i].Name != w.name || nodes[i].Path != w.path || nodes[i].Level != w.level {
			t.Fatalf("node[%d] = %+v, want %+v", i, nodes[i], w)
		}
	}
}

// cyclicStore reports the requested prefix as its own child; the walk
// must terminate anyway.
type cyclicStore struct{ fakeStore }

func (c *cyclicStore) ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*storage.ListPage, error) {
	if prefix == "" {
		return &storage.ListPage{CommonPrefixes: []string{"loop/"}}, nil
	}
	return &storage.ListPage{CommonPrefixes: []string{prefix}}, nil
}

func TestFolderTreeTerminatesOnPathologicalListing(t *testing.T) {
	nodes, err := New(&cyclicStore{}).FolderTree(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Path != "loop/" {
		t.Fatalf("nodes = %v", nodes)
	}
}

func TestFolderDownloadURLs(t *testing.T) {
	f := newFakeStore("pics/", "pics/cat.png", "pics/raw/dog.png")
	dl, err := New(f).FolderDownloadURLs(context.Background(), "pics/", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if dl.FileCount != 2 {
		t.Fatalf("fileCount = %d, markers must be skipped", dl.FileCount)
	}
	var total int64
	paths := map[string]bool{}
	for _, e := range dl.Files {
		if e.URL == "" {
			t.Fatalf("missing presigned URL for %s", e.Path)
		}
		if !strings.Contains(e.URL, "expires=3600") {
			t.Fatalf("expiry not forwarded: %s", e.URL)
		}
		paths[e.Path] = true
		total += e.Size
	}
	if !paths["cat.png"] || !paths["raw/dog.png"] {
		t.Fatalf("paths not rewritten relative to folder: %v", dl.Files)
	}
	if dl.TotalSize != total {
		t.Fatalf("totalSize mismatch")
	}
}

func TestListAbortsWholeCallOnError(t *testing.T) {
	f := newFakeStore("a.txt")
	f.listErr = errors.New("dial tcp: connection refused")
	l, err := New(f).List(context.Background(), "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if l != nil {
		t.Fatalf("no partial listing may be returned")
	}
}

func TestPathHelpers(t *testing.T) {
	if parentOf("a/b/c.txt") != "a/b/" {
		t.Fatalf("parentOf file")
	}
	if parentOf("a/b/") != "a/" {
		t.Fatalf("parentOf folder")
	}
	if parentOf("top.txt") != "" {
		t.Fatalf("parentOf top-level")
	}
	if baseName("a/b/c.txt") != "c.txt" || baseName("a/b/") != "b" || baseName("top") != "top" {
		t.Fatalf("baseName")
	}
	if normalizePrefix("") != "" || normalizePrefix("a") != "a/" || normalizePrefix("a/") != "a/" {
		t.Fatalf("normalizePrefix")
	}
}
