// SPDX-License-Identifier: MIT

// Package store mirrors a volume's sidecar files (range, color, cats,
// hist, mask, §6.1) to an optional S3-compatible object store on Map
// close. It is gated entirely by configuration: with no endpoint
// configured, nothing ever touches the network (§5's Non-goals).
//
// The Storage interface, remoteStorage, and fakeStorage below follow
// the same shape as the teacher's cmd/osmviews-builder/storage.go.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo is the subset of object metadata this package needs from
// either a real or fake backend.
type ObjectInfo struct {
	Key         string
	ContentType string
	ETag        string
}

// Storage is the capability a Map's sidecar mirroring depends on;
// remoteStorage talks to a real S3-compatible endpoint, fakeStorage is
// the in-memory test double.
type Storage interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	PutFile(ctx context.Context, bucket, remotePath, localPath, contentType string) error
	Get(ctx context.Context, bucket, path string) (io.Reader, error)
	Remove(ctx context.Context, bucket, path string) error
}

type remoteStorage struct {
	client *minio.Client
}

func (s *remoteStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *remoteStorage) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	result := make([]ObjectInfo, 0)
	for f := range s.client.ListObjects(ctx, bucket, opts) {
		if f.Err != nil {
			return nil, f.Err
		}
		result = append(result, ObjectInfo{Key: f.Key, ContentType: f.ContentType, ETag: f.ETag})
	}
	return result, nil
}

func (s *remoteStorage) PutFile(ctx context.Context, bucket, remotePath, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, bucket, remotePath, localPath, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *remoteStorage) Get(ctx context.Context, bucket, path string) (io.Reader, error) {
	return s.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
}

func (s *remoteStorage) Remove(ctx context.Context, bucket, path string) error {
	return s.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{})
}

// Credentials mirrors the JSON file the teacher reads for its own S3
// key/secret in cmd/osmviews-builder/storage.go.
type Credentials struct {
	Endpoint, Key, Secret string
}

// NewStorage sets up a client for an S3-compatible object store from a
// credentials file at keypath (§6.2's S3_ENDPOINT/S3_KEY/S3_SECRET env
// vars, read by the caller and written to such a file, or loaded
// directly by NewStorageFromEnv).
func NewStorage(keypath string) (Storage, error) {
	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return newRemoteStorage(creds)
}

// NewStorageFromEnv builds a Storage directly from S3_ENDPOINT/S3_KEY/
// S3_SECRET, returning (nil, nil) when no endpoint is configured so
// callers can treat mirroring as optional without special-casing it.
func NewStorageFromEnv() (Storage, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	return newRemoteStorage(Credentials{
		Endpoint: endpoint,
		Key:      os.Getenv("S3_KEY"),
		Secret:   os.Getenv("S3_SECRET"),
	})
}

// BucketFromEnv returns the target bucket for sidecar mirroring:
// S3_BUCKET, or "raster3d" when unset.
func BucketFromEnv() string {
	if b := os.Getenv("S3_BUCKET"); b != "" {
		return b
	}
	return "raster3d"
}

func newRemoteStorage(creds Credentials) (Storage, error) {
	client, err := minio.New(creds.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.Key, creds.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	client.SetAppInfo("Raster3DStore", "0.1")
	return &remoteStorage{client: client}, nil
}

// MirrorSidecars uploads every sidecar file in sidecarPaths (the
// caller passes the actual paths: <volume>.range, <volume>.color, …)
// to bucket under prefix, skipping any that don't exist (most sidecars
// are optional, §6.1).
func MirrorSidecars(ctx context.Context, s Storage, bucket, prefix string, sidecarPaths map[string]string) error {
	if s == nil {
		return nil
	}
	for name, path := range sidecarPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		contentType := "application/octet-stream"
		remotePath := prefix + "/" + name
		if err := s.PutFile(ctx, bucket, remotePath, path, contentType); err != nil {
			return fmt.Errorf("store: MirrorSidecars: %s: %w", name, err)
		}
	}
	return nil
}

// fakeStorage is an in-memory Storage used by tests, in the shape of
// the teacher's own test double for the same interface.
type fakeStorage struct {
	mu      sync.Mutex
	buckets map[string]map[string]fakeObject
}

type fakeObject struct {
	contentType string
	data        []byte
}

// NewFakeStorage returns a Storage backed by an in-memory map, with no
// network dependency, mirroring cmd/osmviews-builder/storage_test.go's
// NewFakeStorage.
func NewFakeStorage() Storage {
	return &fakeStorage{buckets: make(map[string]map[string]fakeObject)}
}

func (s *fakeStorage) BucketExists(_ context.Context, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

func (s *fakeStorage) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for key, obj := range s.buckets[bucket] {
		if len(prefix) == 0 || (len(key) >= len(prefix) && key[:len(prefix)] == prefix) {
			out = append(out, ObjectInfo{Key: key, ContentType: obj.contentType})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStorage) PutFile(_ context.Context, bucket, remotePath, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string]fakeObject)
	}
	s.buckets[bucket][remotePath] = fakeObject{contentType: contentType, data: data}
	return nil
}

func (s *fakeStorage) Get(_ context.Context, bucket, path string) (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][path]
	if !ok {
		return nil, fmt.Errorf("store: fakeStorage: %s/%s not found", bucket, path)
	}
	return bytes.NewReader(obj.data), nil
}

func (s *fakeStorage) Remove(_ context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], path)
	return nil
}
