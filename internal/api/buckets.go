package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arencloud/iris/internal/db"
	"github.com/arencloud/iris/internal/models"
	"github.com/arencloud/iris/internal/secret"
	"github.com/arencloud/iris/internal/storage"

	"github.com/go-chi/chi/v5"
)

func registerBuckets(r chi.Router) {
	r.Get("/buckets", listBuckets)
	r.Post("/buckets", createBucket)
	r.Post("/buckets/{id}/test", testBucket)
	r.Post("/buckets/{id}/activate", activateBucket)
	r.Patch("/buckets/{id}/rename", renameBucket)
	r.Delete("/buckets/{id}", deleteBucket)
}

// ownedBucket loads a registration by id, scoped to the session user.
// Every file and bucket operation takes an explicit bucket id; the active
// flag is never consulted for access.
func ownedBucket(r *http.Request) (*models.Bucket, int, string) {
	u := currentUser(r)
	if u == nil {
		return nil, 401, "unauthorized"
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return nil, 400, "invalid bucket id"
	}
	var b models.Bucket
	if err := db.DB.Where("id = ? AND user_id = ?", id, u.ID).First(&b).Error; err != nil {
		return nil, 404, "bucket not found"
	}
	return &b, 0, ""
}

// openClient opens the sealed credentials and builds a provider client.
// Plaintext credentials live only for the duration of the request.
func openClient(b *models.Bucket) (*storage.Client, error) {
	ak, err := secret.Open(b.AccessKeyID)
	if err != nil {
		return nil, err
	}
	sk, err := secret.Open(b.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return storage.New(storage.Config{
		Provider:        b.Provider,
		Bucket:          b.BucketName,
		Region:          b.Region,
		Endpoint:        b.Endpoint,
		AccessKeyID:     ak,
		SecretAccessKey: sk,
	})
}

func touchLastConnected(b *models.Bucket) {
	now := time.Now()
	b.LastConnectedAt = &now
	_ = db.DB.Model(b).Update("last_connected_at", now).Error
}

type bucketDTO struct {
	ID              uint       `json:"id"`
	Name            string     `json:"name"`
	Provider        string     `json:"provider"`
	BucketName      string     `json:"bucketName"`
	Region          string     `json:"region,omitempty"`
	Endpoint        string     `json:"endpoint,omitempty"`
	PublicURL       string     `json:"publicUrl,omitempty"`
	IsActive        bool       `json:"isActive"`
	LastConnectedAt *time.Time `json:"lastConnectedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toDTO(b *models.Bucket) bucketDTO {
	return bucketDTO{
		ID: b.ID, Name: b.Name, Provider: b.Provider, BucketName: b.BucketName,
		Region: b.Region, Endpoint: b.Endpoint, PublicURL: b.PublicURL,
		IsActive: b.IsActive, LastConnectedAt: b.LastConnectedAt, CreatedAt: b.CreatedAt,
	}
}

func listBuckets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	var rows []models.Bucket
	if err := db.DB.Where("user_id = ?", u.ID).Order("created_at desc").Find(&rows).Error; err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	out := make([]bucketDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toDTO(&rows[i]))
	}
	json.NewEncoder(w).Encode(out)
}

type bucketInput struct {
	Name            string `json:"name"`
	Provider        string `json:"provider"`
	BucketName      string `json:"bucketName"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	PublicURL       string `json:"publicUrl"`
}

func (in *bucketInput) validate() string {
	in.Name = strings.TrimSpace(in.Name)
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	switch {
	case in.Name == "":
		return "name is required"
	case in.Provider != storage.ProviderS3 && in.Provider != storage.ProviderR2:
		return "provider must be s3 or r2"
	case in.BucketName == "":
		return "bucketName is required"
	case in.AccessKeyID == "" || in.SecretAccessKey == "":
		return "accessKeyId and secretAccessKey are required"
	case in.Provider == storage.ProviderR2 && in.Endpoint == "":
		return "endpoint is required for r2"
	}
	return ""
}

// createBucket validates, tests the connection with the submitted
// credentials and persists the registration only on success.
func createBucket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	addEvent(r, "bucket.register", nil)
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	var in bucketInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if msg := in.validate(); msg != "" {
		respondError(w, r, 400, msg)
		return
	}
	var count int64
	db.DB.Model(&models.Bucket{}).Where("user_id = ? AND name = ?", u.ID, in.Name).Count(&count)
	if count > 0 {
		respondError(w, r, 409, "you already have a bucket with this name")
		return
	}
	client, err := storage.New(storage.Config{
		Provider: in.Provider, Bucket: in.BucketName, Region: in.Region,
		Endpoint: in.Endpoint, AccessKeyID: in.AccessKeyID, SecretAccessKey: in.SecretAccessKey,
	})
	if err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	if err := client.Check(r.Context()); err != nil {
		respondError(w, r, 400, "failed to connect: "+err.Error())
		return
	}
	sealedAK, err := secret.Seal(in.AccessKeyID)
	if err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	sealedSK, err := secret.Seal(in.SecretAccessKey)
	if err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	now := time.Now()
	b := models.Bucket{
		UserID: u.ID, Name: in.Name, Provider: in.Provider, BucketName: in.BucketName,
		Region: in.Region, Endpoint: in.Endpoint, PublicURL: in.PublicURL,
		AccessKeyID: sealedAK, SecretAccessKey: sealedSK, LastConnectedAt: &now,
	}
	if err := db.DB.Create(&b).Error; err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(toDTO(&b))
}

func testBucket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	addEvent(r, "bucket.test", nil)
	b, code, msg := ownedBucket(r)
	if b == nil {
		respondError(w, r, code, msg)
		return
	}
	client, err := openClient(b)
	if err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	if err := client.Check(r.Context()); err != nil {
		respondError(w, r, 502, "connection failed: "+err.Error())
		return
	}
	touchLastConnected(b)
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "lastConnectedAt": b.LastConnectedAt})
}

// activateBucket toggles the UI default-selection flag. It gates nothing.
func activateBucket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	b, code, msg := ownedBucket(r)
	if b == nil {
		respondError(w, r, code, msg)
		return
	}
	b.IsActive = !b.IsActive
	if err := db.DB.Model(b).Update("is_active", b.IsActive).Error; err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"id": b.ID, "isActive": b.IsActive})
}

func renameBucket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	b, code, msg := ownedBucket(r)
	if b == nil {
		respondError(w, r, code, msg)
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, 400, err.Error())
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		respondError(w, r, 400, "name is required")
		return
	}
	var count int64
	db.DB.Model(&models.Bucket{}).Where("user_id = ? AND name = ? AND id != ?", b.UserID, in.Name, b.ID).Count(&count)
	if count > 0 {
		respondError(w, r, 409, "you already have a bucket with this name")
		return
	}
	b.Name = in.Name
	if err := db.DB.Model(b).Update("name", in.Name).Error; err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	json.NewEncoder(w).Encode(toDTO(b))
}

func deleteBucket(w http.ResponseWriter, r *http.Request) {
	b, code, msg := ownedBucket(r)
	if b == nil {
		respondError(w, r, code, msg)
		return
	}
	if err := db.DB.Delete(&models.Bucket{}, b.ID).Error; err != nil {
		respondError(w, r, 500, err.Error())
		return
	}
	w.WriteHeader(204)
}
