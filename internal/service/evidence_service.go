package service

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

const defaultMaxImageBytes = 5 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type evidenceStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type linkSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (subject, relPath string, expiresAt time.Time, err error)
}

type imageAttacher interface {
	Get(ctx context.Context, actor Actor, id string) (*models.JobCardDetail, error)
	AttachImage(ctx context.Context, actor Actor, id, url string) (*models.JobCardDetail, error)
}

// EvidenceServiceParams groups the dependencies of EvidenceService.
type EvidenceServiceParams struct {
	Cards    imageAttacher
	Store    evidenceStore
	Signer   linkSigner
	BaseURL  string
	MaxBytes int64
	Logger   *zap.Logger
}

// EvidenceService stores uploaded job card photos and hands out signed links to them.
type EvidenceService struct {
	cards    imageAttacher
	store    evidenceStore
	signer   linkSigner
	baseURL  string
	maxBytes int64
	logger   *zap.Logger
	newID    func() string
}

// NewEvidenceService constructs the service. BaseURL is the public prefix the
// download route is mounted on, for example "/files".
func NewEvidenceService(params EvidenceServiceParams) *EvidenceService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.MaxBytes <= 0 {
		params.MaxBytes = defaultMaxImageBytes
	}
	return &EvidenceService{
		cards:    params.Cards,
		store:    params.Store,
		signer:   params.Signer,
		baseURL:  strings.TrimRight(params.BaseURL, "/"),
		maxBytes: params.MaxBytes,
		logger:   params.Logger,
		newID:    uuid.NewString,
	}
}

// MaxBytes reports the largest accepted upload.
func (s *EvidenceService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload stores an image for the card and replaces any previously uploaded one.
func (s *EvidenceService) Upload(ctx context.Context, actor Actor, id string, upload models.ImageUpload) (*models.JobCardDetail, error) {
	if len(upload.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image file is empty")
	}
	if int64(len(upload.Data)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image file is too large").
			WithDetails(map[string]interface{}{"max_bytes": s.maxBytes})
	}
	// The declared type is client controlled; trust the sniffed one.
	sniffed := http.DetectContentType(upload.Data)
	ext, ok := imageExtensions[sniffed]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only jpeg, png, gif or webp images are allowed").
			WithDetails(map[string]interface{}{"content_type": sniffed})
	}

	current, err := s.cards.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	key := path.Join("job-cards", id, s.newID()+ext)
	if _, err := s.store.Save(key, upload.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}

	detail, err := s.cards.AttachImage(ctx, actor, id, key)
	if err != nil {
		s.remove(key)
		return nil, err
	}
	if current.ImageURL != nil && isStoredKey(*current.ImageURL) {
		s.remove(*current.ImageURL)
	}
	return detail, nil
}

// Link returns a URL for viewing the card's image.
func (s *EvidenceService) Link(ctx context.Context, actor Actor, id string) (*models.ImageLink, error) {
	detail, err := s.cards.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if detail.ImageURL == nil || *detail.ImageURL == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job card has no image")
	}
	raw := *detail.ImageURL
	if !isStoredKey(raw) {
		return &models.ImageLink{URL: raw}, nil
	}
	token, expiresAt, err := s.signer.Generate(id, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign image link")
	}
	return &models.ImageLink{URL: s.baseURL + "/" + token, ExpiresAt: &expiresAt}, nil
}

// Open resolves a signed token to the stored file. The caller closes Content.
func (s *EvidenceService) Open(ctx context.Context, token string) (*models.StoredFile, error) {
	subject, key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired link")
	}
	if !strings.HasPrefix(key, path.Join("job-cards", subject)+"/") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired link")
	}
	file, err := s.store.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "image not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open image")
	}
	out := &models.StoredFile{Name: path.Base(key), ContentType: contentTypeOf(key), Content: file}
	if info, err := file.Stat(); err == nil {
		out.Size = info.Size()
	}
	return out, nil
}

func (s *EvidenceService) remove(key string) {
	if err := s.store.Delete(key); err != nil {
		s.logger.Warn("failed to delete stored image", zap.String("key", key), zap.Error(err))
	}
}

// isStoredKey distinguishes uploaded files from URLs attached by reference.
func isStoredKey(raw string) bool {
	return strings.HasPrefix(raw, "job-cards/") && !strings.Contains(raw, "://")
}

func contentTypeOf(key string) string {
	ext := path.Ext(key)
	for contentType, candidate := range imageExtensions {
		if candidate == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}
