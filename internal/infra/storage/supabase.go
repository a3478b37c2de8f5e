package storage

import (
	"bytes"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// Storage stores case artifacts under object keys.
type Storage interface {
	Upload(objectKey string, contentType string, body []byte) error
}

// SupabaseConfig identifies a Supabase Storage bucket.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseStorage implements Storage using Supabase's Storage API.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStorage constructs a Supabase storage client.
func NewSupabaseStorage(cfg SupabaseConfig) (*SupabaseStorage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "cases"
	}
	client, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStorage{client: client, bucket: cfg.Bucket}, nil
}

// Upload writes a new object. Case keys are unique per session, so objects are never overwritten.
func (s *SupabaseStorage) Upload(objectKey string, contentType string, body []byte) error {
	_, err := s.client.Storage.UploadFile(s.bucket, objectKey, bytes.NewReader(body), uploadOptions(contentType))
	if err != nil {
		return fmt.Errorf("failed to upload %s to Supabase: %w", objectKey, err)
	}
	return nil
}

func uploadOptions(contentType string) storage_go.FileOptions {
	var opts storage_go.FileOptions
	if contentType != "" {
		opts.ContentType = &contentType
	}
	return opts
}
