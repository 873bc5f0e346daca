package service

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/export"
	"github.com/noah-isme/journal-api/pkg/storage"
	"github.com/noah-isme/journal-api/pkg/watermark"
)

const (
	exportPageSize = 100
	exportMaxRows  = 5000
)

var pdfMagic = []byte("%PDF-")

type manuscriptFiles interface {
	SaveStream(name string, r io.Reader) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type linkSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (subject, relPath string, expiresAt time.Time, err error)
}

type coauthorInviter interface {
	Invite(ctx context.Context, articleID string, userIDs []string, actor *models.JWTClaims) (*dto.InviteCoAuthorsResult, error)
}

// ArticleService covers the author side of the workflow: drafts, submission and file access.
type ArticleService struct {
	tx          transactor
	articles    articleStore
	files       manuscriptFiles
	signer      linkSigner
	stamper     manuscriptStamper
	inviter     coauthorInviter
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	cfg         WorkflowSettings
	downloadURL string
	now         func() time.Time
}

// NewArticleService wires the article service. downloadURL is the public prefix of the file route.
func NewArticleService(tx transactor, articles articleStore, files manuscriptFiles, signer linkSigner, stamper manuscriptStamper, inviter coauthorInviter, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg WorkflowSettings, downloadURL string) *ArticleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ArticleService{
		tx:          tx,
		articles:    articles,
		files:       files,
		signer:      signer,
		stamper:     stamper,
		inviter:     inviter,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		cfg:         cfg.withDefaults(),
		downloadURL: strings.TrimRight(downloadURL, "/"),
		now:         time.Now,
	}
}

// CreateDraft stores the manuscript, when given, and creates a DRAFT owned by the actor.
func (s *ArticleService) CreateDraft(ctx context.Context, req dto.CreateArticleRequest, upload *dto.ManuscriptUpload, actor *models.JWTClaims) (*dto.ArticleView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid article payload")
	}

	article := &models.Article{
		ID:             uuid.NewString(),
		AuthorID:       actor.UserID,
		Title:          req.Title,
		Slug:           req.Slug,
		LifecycleState: models.StateDraft,
		FileURL:        req.FileURL,
		CreatedAt:      s.now().UTC(),
	}
	if upload != nil {
		path, err := s.storeManuscript(article.ID, upload)
		if err != nil {
			return nil, err
		}
		article.FileURL = path
	}

	if err := s.articles.Create(ctx, article); err != nil {
		if upload != nil {
			if delErr := s.files.Delete(article.FileURL); delErr != nil {
				s.logger.Warn("failed to remove orphaned manuscript", zap.String("path", article.FileURL), zap.Error(delErr))
			}
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "slug already in use")
		}
		return nil, internalError(err, "failed to create article")
	}
	s.logger.Info("draft created", zap.String("article_id", article.ID), zap.String("author_id", actor.UserID))
	return dto.NewArticleView(article), nil
}

// UpdateDraft edits title or slug while the article is a draft.
func (s *ArticleService) UpdateDraft(ctx context.Context, articleID string, req dto.UpdateArticleRequest, actor *models.JWTClaims) (*dto.ArticleView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid article payload")
	}
	current, err := s.owned(ctx, articleID, actor)
	if err != nil {
		return nil, err
	}
	title, slug := current.Title, current.Slug
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	if req.Slug != nil {
		slug = strings.ToLower(strings.TrimSpace(*req.Slug))
	}
	updated, err := s.articles.UpdateDraft(ctx, articleID, title, slug)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTransition, "only drafts can be edited"),
				map[string]interface{}{"current_state": string(current.LifecycleState)})
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "slug already in use")
		default:
			return nil, internalError(err, "failed to update article")
		}
	}
	return dto.NewArticleView(updated), nil
}

// Submit sends a draft to review, stamping it UNDER REVIEW, then invites any listed co-authors.
func (s *ArticleService) Submit(ctx context.Context, articleID string, req dto.SubmitArticleRequest, actor *models.JWTClaims) (*dto.SubmitArticleResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	current, err := s.owned(ctx, articleID, actor)
	if err != nil {
		return nil, err
	}
	if _, err := Plan(models.ActionSubmit, current.LifecycleState); err != nil {
		s.metrics.ObserveTransition(models.ActionSubmit, outcomeLabel(err))
		return nil, err
	}
	if current.FileURL == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a manuscript file is required before submission")
	}
	stamped, err := s.stamper.Stamp(ctx, current, watermark.LabelUnderReview)
	if err != nil {
		return nil, internalError(err, "failed to watermark manuscript")
	}

	var article *models.Article
	txCtx, cancel := withTimeout(ctx, s.cfg.PersistTimeout)
	err = s.tx.WithinTx(txCtx, func(ctx context.Context) error {
		now := s.now().UTC()
		updated, err := transitionArticle(ctx, s.articles, models.ActionSubmit, articleID, nil, now,
			repository.Assignment{Column: "submitted_at", Value: now},
			repository.Assignment{Column: "watermarked_file_url", Value: stamped})
		article = updated
		return err
	})
	cancel()
	s.metrics.ObserveTransition(models.ActionSubmit, outcomeLabel(err))
	if err != nil {
		return nil, internalError(err, "failed to submit article")
	}
	s.logger.Info("article submitted", zap.String("article_id", article.ID))

	result := &dto.SubmitArticleResult{Article: dto.NewArticleView(article)}
	if len(req.CoAuthorIDs) > 0 && s.inviter != nil {
		invites, err := s.inviter.Invite(ctx, article.ID, req.CoAuthorIDs, actor)
		if err != nil {
			s.logger.Warn("co-author invitation after submit failed", zap.String("article_id", article.ID), zap.Error(err))
			result.InvitationError = appErrors.FromError(err).Message
		} else {
			result.Invitations = invites
		}
	}
	return result, nil
}

// Get returns one article to its author or an editor.
func (s *ArticleService) Get(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ArticleView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	article, err := s.readable(ctx, articleID, actor)
	if err != nil {
		return nil, err
	}
	return dto.NewArticleView(article), nil
}

// List returns the review queue for editors and the actor's own articles otherwise.
func (s *ArticleService) List(ctx context.Context, query dto.ArticleQuery, actor *models.JWTClaims) ([]*dto.ArticleView, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	filter, err := s.filterFor(query, actor)
	if err != nil {
		return nil, nil, err
	}
	articles, total, err := s.articles.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list articles")
	}
	views := make([]*dto.ArticleView, len(articles))
	for i := range articles {
		views[i] = dto.NewArticleView(&articles[i])
	}
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Export renders the editor review queue as CSV or PDF.
func (s *ArticleService) Export(ctx context.Context, states []models.LifecycleState, format export.Format, actor *models.JWTClaims) ([]byte, string, error) {
	if err := requireEditor(actor); err != nil {
		return nil, "", err
	}
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	filter, err := s.filterFor(dto.ArticleQuery{States: states}, actor)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Title:   "Review queue " + s.now().UTC().Format("2006-01-02"),
		Headers: []string{"ID", "Title", "State", "Submitted", "Approved", "UTR", "Updated"},
	}
	filter.PageSize = exportPageSize
	for page := 1; len(data.Rows) < exportMaxRows; page++ {
		filter.Page = page
		articles, total, err := s.articles.List(ctx, filter)
		if err != nil {
			return nil, "", internalError(err, "failed to load review queue")
		}
		for _, a := range articles {
			data.Rows = append(data.Rows, map[string]string{
				"ID":        a.ID,
				"Title":     a.Title,
				"State":     string(a.LifecycleState),
				"Submitted": formatOptionalTime(a.SubmittedAt),
				"Approved":  formatOptionalTime(a.ApprovedAt),
				"UTR":       derefString(a.UTRNumber),
				"Updated":   a.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(articles) < exportPageSize || page*exportPageSize >= total {
			break
		}
	}

	body, err := export.Render(format, data)
	if err != nil {
		return nil, "", internalError(err, "failed to render export")
	}
	return body, format.ContentType(), nil
}

// DownloadLink signs a short lived link to the original or watermarked manuscript.
func (s *ArticleService) DownloadLink(ctx context.Context, articleID string, watermarked bool, actor *models.JWTClaims) (*dto.DownloadLink, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	article, err := s.readable(ctx, articleID, actor)
	if err != nil {
		return nil, err
	}
	path := article.FileURL
	if watermarked {
		path = derefString(article.WatermarkedFileURL)
	}
	if path == "" || strings.Contains(path, "://") {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not available")
	}
	token, expiresAt, err := s.signer.Generate(article.ID, path)
	if err != nil {
		return nil, internalError(err, "failed to sign download link")
	}
	return &dto.DownloadLink{URL: s.downloadURL + "/" + token, ExpiresAt: expiresAt}, nil
}

// OpenDownload resolves a signed link to an open file and a download name.
func (s *ArticleService) OpenDownload(ctx context.Context, token string) (*os.File, string, error) {
	articleID, path, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrLinkExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrTokenExpired, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "download link is invalid")
	}
	if !strings.HasPrefix(path, "articles/"+articleID+"/") {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "download link is invalid")
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	file, err := s.files.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, "", internalError(err, "failed to open file")
	}
	return file, filepath.Base(path), nil
}

func (s *ArticleService) storeManuscript(articleID string, upload *dto.ManuscriptUpload) (string, error) {
	if !strings.EqualFold(filepath.Ext(upload.Filename), ".pdf") {
		return "", appErrors.Clone(appErrors.ErrValidation, "manuscript must be a PDF file")
	}
	reader := bufio.NewReader(upload.Reader)
	head, err := reader.Peek(len(pdfMagic))
	if err != nil || !bytes.Equal(head, pdfMagic) {
		return "", appErrors.Clone(appErrors.ErrValidation, "manuscript must be a PDF file")
	}
	path, err := s.files.SaveStream(fmt.Sprintf("articles/%s/manuscript.pdf", articleID), reader)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return "", appErrors.WithStatus(appErrors.Clone(appErrors.ErrValidation, "manuscript exceeds the upload size limit"), http.StatusRequestEntityTooLarge)
		}
		return "", internalError(err, "failed to store manuscript")
	}
	return path, nil
}

func (s *ArticleService) owned(ctx context.Context, articleID string, actor *models.JWTClaims) (*models.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	if article.AuthorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may change this article")
	}
	return article, nil
}

func (s *ArticleService) readable(ctx context.Context, articleID string, actor *models.JWTClaims) (*models.Article, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, articleNotFound(err)
	}
	if article.AuthorID != actor.UserID && !actor.Role.IsEditor() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this article")
	}
	return article, nil
}

func (s *ArticleService) filterFor(query dto.ArticleQuery, actor *models.JWTClaims) (models.ArticleFilter, error) {
	for _, state := range query.States {
		if !state.Valid() {
			return models.ArticleFilter{}, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown lifecycle state"),
				map[string]interface{}{"state": string(state)})
		}
	}
	filter := models.ArticleFilter{States: query.States, Page: query.Page, PageSize: query.PageSize}
	if !actor.Role.IsEditor() {
		filter.AuthorID = actor.UserID
	}
	return filter, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
