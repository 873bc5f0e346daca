package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/pkg/watermark"
)

type manuscriptStamper interface {
	Stamp(ctx context.Context, article *models.Article, label string) (string, error)
}

type sheetRenderer interface {
	Render(sheet watermark.Sheet) ([]byte, error)
}

type fileSaver interface {
	Save(name string, data []byte) (string, error)
}

// WatermarkService renders the stamp sheet for a manuscript and stores it next to the upload.
type WatermarkService struct {
	renderer sheetRenderer
	files    fileSaver
	users    userDirectory
	logger   *zap.Logger
	now      func() time.Time
}

// NewWatermarkService constructs the service.
func NewWatermarkService(renderer sheetRenderer, files fileSaver, users userDirectory, logger *zap.Logger) *WatermarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatermarkService{renderer: renderer, files: files, users: users, logger: logger, now: time.Now}
}

// Stamp writes the sheet for article with label and returns its storage path.
func (s *WatermarkService) Stamp(ctx context.Context, article *models.Article, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	author := ""
	if s.users != nil {
		if user, err := s.users.FindByID(ctx, article.AuthorID); err == nil {
			author = user.FullName
		} else {
			s.logger.Debug("watermark author lookup failed", zap.String("article_id", article.ID), zap.Error(err))
		}
	}
	issued := s.now().UTC()
	data, err := s.renderer.Render(watermark.Sheet{
		ArticleID: article.ID,
		Title:     article.Title,
		Author:    author,
		Label:     label,
		IssuedAt:  issued,
	})
	if err != nil {
		return "", err
	}
	slug := strings.ToLower(strings.ReplaceAll(label, " ", "-"))
	name := fmt.Sprintf("articles/%s/watermark-%s-%d.pdf", article.ID, slug, issued.Unix())
	path, err := s.files.Save(name, data)
	if err != nil {
		return "", fmt.Errorf("store watermark: %w", err)
	}
	s.logger.Info("watermark stamped", zap.String("article_id", article.ID), zap.String("label", label), zap.String("path", path))
	return path, nil
}
