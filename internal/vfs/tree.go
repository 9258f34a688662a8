package vfs

import (
	"context"
	"strings"
	"time"
)

// TreeNode is one folder in the full tree, depth-first order.
type TreeNode struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Level int    `json:"level"`
}

// FolderTree walks every prefix level, one listing call per level, root
// first. Visited prefixes are memoized so a prefix that lists itself as
// its own child is never revisited. Cost is one provider round trip per
// folder level with no caching; deep trees are expected to be slow.
func (e *Emulator) FolderTree(ctx context.Context) ([]TreeNode, error) {
	out := []TreeNode{}
	visited := map[string]struct{}{}
	var walk func(prefix string, level int) error
	walk = func(prefix string, level int) error {
		if _, seen := visited[prefix]; seen {
			return nil
		}
		visited[prefix] = struct{}{}
		token := ""
		for {
			page, err := e.store.ListPage(ctx, prefix, Delimiter, token, listPageSize)
			if err != nil {
				return err
			}
			for _, cp := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(cp, prefix), Delimiter)
				if name == "" {
					continue
				}
				out = append(out, TreeNode{Name: name, Path: cp, Level: level})
				if err := walk(cp, level+1); err != nil {
					return err
				}
			}
			if !page.Truncated || page.NextToken == "" {
				return nil
			}
			token = page.NextToken
		}
	}
	if err := walk("", 0); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadEntry is one file of a bulk folder download, its path relative
// to the requested folder so the client can rebuild the archive layout.
type DownloadEntry struct {
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type FolderDownload struct {
	Files     []DownloadEntry `json:"files"`
	TotalSize int64           `json:"totalSize"`
	FileCount int             `json:"fileCount"`
}

// FolderDownloadURLs enumerates every object under folderPrefix and
// issues one presigned GET per file. Folder markers are skipped. No
// archive is built server-side; the client fetches each URL itself.
func (e *Emulator) FolderDownloadURLs(ctx context.Context, folderPrefix string, expiry time.Duration) (*FolderDownload, error) {
	prefix := asPrefix(folderPrefix)
	objs, err := e.listAll(ctx, prefix)
	if err != nil {
		return nil, err
	}
	dl := &FolderDownload{Files: []DownloadEntry{}}
	for _, o := range objs {
		if strings.HasSuffix(o.Key, Delimiter) {
			continue
		}
		url, err := e.store.PresignGet(ctx, o.Key, expiry)
		if err != nil {
			return nil, err
		}
		dl.Files = append(dl.Files, DownloadEntry{
			Path: strings.TrimPrefix(o.Key, prefix),
			URL:  url,
			Size: o.Size,
		})
		dl.TotalSize += o.Size
	}
	dl.FileCount = len(dl.Files)
	return dl, nil
}
