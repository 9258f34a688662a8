package api

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/arencloud/iris/internal/models"
	"github.com/arencloud/iris/internal/storage"
	"github.com/arencloud/iris/internal/vfs"

	"github.com/go-chi/chi/v5"
)

// Presign lifetimes per operation. Bulk folder URLs get the longest
// window because the client fetches files one by one.
const (
	uploadURLExpiry   = 10 * time.Minute
	downloadURLExpiry = 5 * time.Minute
	viewURLExpiry     = 30 * time.Minute
	bulkURLExpiry     = 60 * time.Minute

	// viewVideoMaxSize caps videos served through the viewer; larger
	// files must go through a normal download.
	viewVideoMaxSize = 100 << 20
	// viewInlineMaxSize caps text content returned inline in the JSON
	// response instead of a presigned URL.
	viewInlineMaxSize = 1 << 20
)

func registerFiles(r chi.Router) {
	r.Get("/buckets/{id}/files", listFiles)
	r.Post("/buckets/{id}/folders", createFolder)
	r.Delete("/buckets/{id}/files", deleteFile)
	r.Post("/buckets/{id}/files/rename", renameFile)
	r.Post("/buckets/{id}/files/move", moveFiles)
	r.Post("/buckets/{id}/upload-url", uploadURL)
	r.Get("/buckets/{id}/download-url", downloadURL)
	r.Post("/buckets/{id}/view-url", viewURL)
	r.Post("/buckets/{id}/folder-download-urls", folderDownloadURLs)
	r.Get("/buckets/{id}/folder-tree", folderTree)
}

// bucketCtx bundles what every file handler needs: the registration, an
// opened client and the folder emulator over it.
type bucketCtx struct {
	bucket *models.Bucket
	client *storage.Client
	em     *vfs.Emulator
}

// bucketCtxFor resolves the bucket and opens its credentials. Errors have
// already been written when it returns nil.
func bucketCtxFor(w http.ResponseWriter, r *http.Request) *bucketCtx {
	b, code, msg := ownedBucket(r)
	if b == nil {
		respondError(w, r, code, msg)
		return nil
	}
	client, err := openClient(b)
	if err != nil {
		respondError(w, r, 500, err.Error())
		return nil
	}
	return &bucketCtx{bucket: b, client: client, em: vfs.New(client)}
}

// storageStatus maps provider failures: a missing bucket is 404,
// anything else from the remote is a 502.
func storageStatus(err error) int {
	if storage.IsNoSuchBucket(err) {
		return 404
	}
	return 502
}

type crumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// breadcrumbs splits a prefix into clickable path segments, root first.
func breadcrumbs(prefix string) []crumb {
	out := []crumb{{Name: "", Path: ""}}
	trimmed := strings.TrimSuffix(prefix, vfs.Delimiter)
	if trimmed == "" {
		return out
	}
	acc := ""
	for _, seg := range strings.Split(trimmed, vfs.Delimiter) {
		acc += seg + vfs.Delimiter
		out = append(out, crumb{Name: seg, Path: acc})
	}
	return out
}

func listFiles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix != "" && !strings.HasSuffix(prefix, vfs.Delimiter) {
		prefix += vfs.Delimiter
	}
	listing, err := bc.em.List(r.Context(), prefix, r.URL.Query().Get("page_token"))
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	touchLastConnected(bc.bucket)
	addEvent(r, "files.list", map[string]any{"prefix": prefix, "files": len(listing.Files), "folders": len(listing.Folders)})
	json.NewEncoder(w).Encode(map[string]any{
		"files":         listing.Files,
		"folders":       listing.Folders,
		"breadcrumbs":   breadcrumbs(prefix),
		"prefix":        prefix,
		"hasMore":       listing.HasMore,
		"nextPageToken": listing.NextPageToken,
	})
}

func createFolder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Prefix string `json:"prefix"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	key, err := bc.em.CreateFolder(r.Context(), in.Prefix, in.Name)
	if err != nil {
		if err == vfs.ErrEmptyName {
			respondError(w, r, 400, "folder name is required")
			return
		}
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.create_folder", map[string]any{"path": key})
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(map[string]any{"path": key})
}

func deleteFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, r, 400, "key is required")
		return
	}
	n, err := bc.em.Delete(r.Context(), key)
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.delete", map[string]any{"key": key, "deleted": n})
	json.NewEncoder(w).Encode(map[string]any{"deleted": n})
}

func renameFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Path     string `json:"path"`
		NewName  string `json:"newName"`
		IsFolder bool   `json:"isFolder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if in.Path == "" {
		respondError(w, r, 400, "path is required")
		return
	}
	newPath, err := bc.em.Rename(r.Context(), in.Path, in.NewName, in.IsFolder)
	if err != nil {
		if err == vfs.ErrEmptyName {
			respondError(w, r, 400, "new name is required")
			return
		}
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.rename", map[string]any{"from": in.Path, "to": newPath})
	json.NewEncoder(w).Encode(map[string]any{"path": newPath})
}

func moveFiles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Items       []string `json:"items"`
		Destination string   `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if len(in.Items) == 0 {
		respondError(w, r, 400, "items are required")
		return
	}
	res := bc.em.Move(r.Context(), in.Items, in.Destination)
	addEvent(r, "files.move", map[string]any{"moved": res.Moved, "failed": len(res.Errors)})
	if !res.OK() {
		w.WriteHeader(422)
	}
	json.NewEncoder(w).Encode(res)
}

func uploadURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Prefix      string `json:"prefix"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	name := strings.Trim(strings.TrimSpace(in.FileName), vfs.Delimiter)
	if name == "" {
		respondError(w, r, 400, "fileName is required")
		return
	}
	key := in.Prefix + name
	url, err := bc.client.PresignPut(r.Context(), key, in.ContentType, uploadURLExpiry)
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.upload_url", map[string]any{"key": key})
	json.NewEncoder(w).Encode(map[string]any{"uploadUrl": url, "key": key})
}

func downloadURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		respondError(w, r, 400, "key is required")
		return
	}
	url, err := bc.client.PresignGet(r.Context(), key, downloadURLExpiry)
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.download_url", map[string]any{"key": key})
	json.NewEncoder(w).Encode(map[string]any{"url": url})
}

// viewURL serves the in-browser preview. Small text files come back
// inline; oversized videos are refused; everything else gets a presigned
// URL with a longer lifetime than a plain download.
func viewURL(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if in.Key == "" {
		respondError(w, r, 400, "key is required")
		return
	}
	info, err := bc.client.Head(r.Context(), in.Key)
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, r, 404, "file not found")
			return
		}
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(in.Key), "."))
	if isVideoExt(ext) && info.Size > viewVideoMaxSize {
		respondError(w, r, 400, "video is too large to preview; download it instead")
		return
	}
	if isTextExt(ext) && info.Size < viewInlineMaxSize {
		body, _, err := bc.client.Get(r.Context(), in.Key)
		if err != nil {
			respondError(w, r, storageStatus(err), err.Error())
			return
		}
		defer body.Close()
		content, err := io.ReadAll(io.LimitReader(body, viewInlineMaxSize))
		if err != nil {
			respondError(w, r, 502, err.Error())
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"inline": true, "content": string(content), "contentType": info.ContentType, "size": info.Size})
		return
	}
	url, err := bc.client.PresignGet(r.Context(), in.Key, viewURLExpiry)
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"inline": false, "url": url, "contentType": info.ContentType, "size": info.Size})
}

func folderDownloadURLs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	var in struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if in.Path == "" {
		respondError(w, r, 400, "path is required")
		return
	}
	dl, err := bc.em.FolderDownloadURLs(r.Context(), in.Path, bulkURLExpiry)
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	addEvent(r, "files.folder_download", map[string]any{"path": in.Path, "files": dl.FileCount})
	json.NewEncoder(w).Encode(dl)
}

func folderTree(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	bc := bucketCtxFor(w, r)
	if bc == nil {
		return
	}
	tree, err := bc.em.FolderTree(r.Context())
	if err != nil {
		respondError(w, r, storageStatus(err), err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"folders": tree})
}

var videoExts = map[string]bool{
	"mp4": true, "webm": true, "mov": true, "mkv": true, "avi": true, "m4v": true,
}

var textExts = map[string]bool{
	"txt": true, "md": true, "csv": true, "json": true, "xml": true, "yaml": true,
	"yml": true, "toml": true, "ini": true, "log": true, "sh": true, "sql": true,
	"js": true, "ts": true, "go": true, "py": true, "rb": true, "php": true,
	"html": true, "css": true, "c": true, "h": true, "cpp": true, "java": true,
}

func isVideoExt(ext string) bool { return videoExts[ext] }
func isTextExt(ext string) bool  { return textExts[ext] }
