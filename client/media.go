package client

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

// LocalMediaStore keeps uploads in a directory that the HTTP server exposes under PublicURL.
type LocalMediaStore struct {
	logger    types.Logger
	directory string
	publicURL string
}

func NewLocalMediaStore(logger types.Logger, directory, publicURL string) (*LocalMediaStore, error) {
	if directory == "" {
		directory = "uploads"
	}
	if publicURL == "" {
		publicURL = "/uploads"
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, types.WrapError(err, "failed to create media directory")
	}

	return &LocalMediaStore{
		logger:    logger,
		directory: directory,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

func (s *LocalMediaStore) Directory() string {
	return s.directory
}

func (s *LocalMediaStore) PublicURL() string {
	return s.publicURL
}

func (s *LocalMediaStore) Upload(_ context.Context, name string, data []byte) (types.Photo, error) {
	if len(data) == 0 {
		return types.Photo{}, types.Errorf(types.ErrValidation, "empty file %s", name)
	}

	id := uuid.NewString() + extension(name)

	if err := os.WriteFile(filepath.Join(s.directory, id), data, 0o644); err != nil {
		return types.Photo{}, types.Errorf(types.ErrUpstream, "store %s: %v", name, err)
	}

	return types.Photo{PublicID: id, URL: s.publicURL + "/" + id}, nil
}

// Delete removes the given files. Missing files are ignored.
func (s *LocalMediaStore) Delete(_ context.Context, publicIDs ...string) error {
	var errs []error

	for _, id := range publicIDs {
		if id == "" || strings.ContainsAny(id, `/\`) {
			continue
		}

		err := os.Remove(filepath.Join(s.directory, id))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return types.Errorf(types.ErrUpstream, "delete media: %v", errors.Join(errs...))
	}

	return nil
}

type uploadResponse struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// RemoteMediaStore talks to an image-hosting API: POST /upload with the raw bytes,
// DELETE /media/{public_id} to remove.
type RemoteMediaStore struct {
	client *HTTPClient
	logger types.Logger
	apiKey string
}

func NewRemoteMediaStore(client *HTTPClient, logger types.Logger, apiKey string) *RemoteMediaStore {
	return &RemoteMediaStore{
		client: client,
		logger: logger,
		apiKey: apiKey,
	}
}

func (s *RemoteMediaStore) Upload(ctx context.Context, name string, data []byte) (types.Photo, error) {
	if len(data) == 0 {
		return types.Photo{}, types.Errorf(types.ErrValidation, "empty file %s", name)
	}

	response, err := s.client.Do(ctx, Request{
		Method:      fasthttp.MethodPost,
		Path:        "/upload",
		Body:        data,
		ContentType: "application/octet-stream",
		Headers:     s.headers(map[string]string{"X-File-Name": filepath.Base(name)}),
	})
	if err != nil {
		return types.Photo{}, types.Errorf(types.ErrUpstream, "upload %s: %v", name, err)
	}

	var uploaded uploadResponse
	if err := utils.Unmarshal(response.Body, &uploaded); err != nil {
		return types.Photo{}, types.Errorf(types.ErrUpstream, "upload response: %v", err)
	}

	return types.Photo{PublicID: uploaded.PublicID, URL: uploaded.URL}, nil
}

func (s *RemoteMediaStore) Delete(ctx context.Context, publicIDs ...string) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, id := range publicIDs {
		id := id
		if id == "" {
			continue
		}

		g.Go(func() error {
			_, err := s.client.Do(gCtx, Request{
				Method:  fasthttp.MethodDelete,
				Path:    "/media/" + id,
				Headers: s.headers(nil),
			})

			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode == fasthttp.StatusNotFound {
				s.logger.Debug("Media already deleted", zap.String("public_id", id))
				return nil
			}

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return types.Errorf(types.ErrUpstream, "delete media: %v", err)
	}

	return nil
}

func (s *RemoteMediaStore) headers(extra map[string]string) map[string]string {
	headers := map[string]string{}
	if s.apiKey != "" {
		headers[fasthttp.HeaderAuthorization] = "Bearer " + s.apiKey
	}
	for key, value := range extra {
		headers[key] = value
	}
	return headers
}

func extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 6 {
		return ""
	}

	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}

	return ext
}
