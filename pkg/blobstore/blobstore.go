// Package blobstore keeps evidence files. Objects are addressed by an opaque
// path; reads go through short-lived signed URLs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidPath  = errors.New("invalid blob path")
	ErrInvalidToken = errors.New("invalid or expired blob token")
)

type Store interface {
	// Put stores data under scope and returns its opaque path.
	Put(ctx context.Context, scope, fileName string, data []byte) (string, error)
	// Sign returns a URL that serves the object until ttl elapses.
	Sign(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// LocalStore writes objects below Root and signs URLs with an HS256 token
// bound to the object path.
type LocalStore struct {
	root    string
	baseURL string
	secret  []byte
}

func NewLocalStore(root, baseURL, secret string) (*LocalStore, error) {
	if secret == "" {
		return nil, errors.New("blob signing secret is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, scope, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectPath := path.Join(cleanScope(scope), uuid.NewString()+cleanExt(fileName))

	full, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	// write then rename so a half-written file is never visible
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return objectPath, nil
}

type blobClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

func (s *LocalStore) Sign(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(objectPath); err != nil {
		return "", err
	}
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, blobClaims{
		Path: objectPath,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign blob url: %w", err)
	}
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/blobs/" + strings.Join(segments, "/") + "?token=" + url.QueryEscape(token), nil
}

// Verify checks that token was issued for objectPath and has not expired.
func (s *LocalStore) Verify(objectPath, token string) error {
	claims := &blobClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || claims.Path != objectPath {
		return ErrInvalidToken
	}
	return nil
}

// Open returns the object for reading.
func (s *LocalStore) Open(objectPath string) (io.ReadSeekCloser, os.FileInfo, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// resolve maps an object path to a file below root, refusing traversal.
func (s *LocalStore) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if objectPath == "" || clean == "/" || strings.Contains(objectPath, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func cleanScope(scope string) string {
	parts := strings.FieldsFunc(scope, func(r rune) bool { return r == '/' || r == '\\' })
	kept := parts[:0]
	for _, p := range parts {
		if p != "." && p != ".." {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "misc"
	}
	return path.Join(kept...)
}

// cleanExt keeps the lower-cased extension of fileName restricted to
// [a-z0-9.], or nothing when no such character is left.
func cleanExt(fileName string) string {
	ext := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, strings.ToLower(path.Ext(fileName)))
	if strings.Trim(ext, ".") == "" {
		return ""
	}
	return "." + strings.Trim(ext, ".")
}
