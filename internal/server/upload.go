package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

const uploadField = "file"

type upload struct {
	path string
	// digest is the xxhash of the content, keying the result caches
	digest uint64
}

// spoolUpload copies the multipart file field into a unique temporary file.
// The caller must invoke the returned cleanup on every path.
func (s *Server) spoolUpload(w http.ResponseWriter, r *http.Request) (*upload, func(), error) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, nil, emergency.Validation("upload exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, http.ErrMissingFile):
			return nil, nil, emergency.Validation("file is required")
		default:
			return nil, nil, emergency.Validation("invalid multipart upload: %s", err.Error())
		}
	}
	defer file.Close()
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	tmp, err := os.CreateTemp(s.tempDir, "upload-*"+uploadExtension(header.Filename))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temp file", slog.String("error", err.Error()), slog.String("path", tmp.Name()))
		}
	}

	digest := xxhash.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), file)
	closeErr := tmp.Close()
	if err != nil {
		cleanup()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, emergency.Validation("upload exceeds %d bytes", tooLarge.Limit)
		}
		return nil, nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if closeErr != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	slog.Info("received upload",
		slog.String("path", r.URL.Path),
		slog.String("filename", header.Filename),
		slog.Int64("size", size),
		slog.String("upload_hash", fmt.Sprintf("%016x", digest.Sum64())),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	return &upload{path: tmp.Name(), digest: digest.Sum64()}, cleanup, nil
}

// uploadExtension keeps the client's extension so downstream services can
// sniff the format, and nothing else of the client's name.
func uploadExtension(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return strings.ToLower(ext)
}
