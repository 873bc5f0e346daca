package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	appErrors "github.com/noah-isme/journal-api/pkg/errors"
	"github.com/noah-isme/journal-api/pkg/export"
	"github.com/noah-isme/journal-api/pkg/response"
)

type articleService interface {
	CreateDraft(ctx context.Context, req dto.CreateArticleRequest, upload *dto.ManuscriptUpload, actor *models.JWTClaims) (*dto.ArticleView, error)
	UpdateDraft(ctx context.Context, articleID string, req dto.UpdateArticleRequest, actor *models.JWTClaims) (*dto.ArticleView, error)
	Submit(ctx context.Context, articleID string, req dto.SubmitArticleRequest, actor *models.JWTClaims) (*dto.SubmitArticleResult, error)
	Get(ctx context.Context, articleID string, actor *models.JWTClaims) (*dto.ArticleView, error)
	List(ctx context.Context, query dto.ArticleQuery, actor *models.JWTClaims) ([]*dto.ArticleView, *models.Pagination, error)
	Export(ctx context.Context, states []models.LifecycleState, format export.Format, actor *models.JWTClaims) ([]byte, string, error)
	DownloadLink(ctx context.Context, articleID string, watermarked bool, actor *models.JWTClaims) (*dto.DownloadLink, error)
	OpenDownload(ctx context.Context, token string) (*os.File, string, error)
}

// ArticleHandler exposes the author side of the article lifecycle.
type ArticleHandler struct {
	articles articleService
}

// NewArticleHandler constructs the handler.
func NewArticleHandler(articles articleService) *ArticleHandler {
	return &ArticleHandler{articles: articles}
}

// Create godoc
// @Summary Create a draft article
// @Description Accepts multipart (file, title, slug) or JSON with file_url
// @Tags Articles
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param title formData string true "Title"
// @Param slug formData string true "Slug"
// @Param file formData file false "Manuscript PDF"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /articles [post]
func (h *ArticleHandler) Create(c *gin.Context) {
	var req dto.CreateArticleRequest
	var upload *dto.ManuscriptUpload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article form"))
			return
		}
		header, err := c.FormFile("file")
		if err != nil && err != http.ErrMissingFile {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manuscript upload"))
			return
		}
		if header != nil {
			file, err := header.Open()
			if err != nil {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid manuscript upload"))
				return
			}
			defer file.Close()
			upload = &dto.ManuscriptUpload{Filename: header.Filename, Size: header.Size, Reader: file}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article payload"))
		return
	}

	view, err := h.articles.CreateDraft(c.Request.Context(), req, upload, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Update godoc
// @Summary Edit a draft
// @Tags Articles
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param payload body dto.UpdateArticleRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id} [patch]
func (h *ArticleHandler) Update(c *gin.Context) {
	var req dto.UpdateArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid article payload"))
		return
	}
	view, err := h.articles.UpdateDraft(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Submit godoc
// @Summary Submit a draft for review
// @Tags Articles
// @Accept json
// @Produce json
// @Param id path string true "Article ID"
// @Param payload body dto.SubmitArticleRequest false "Co-authors to invite"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /articles/{id}/submit [post]
func (h *ArticleHandler) Submit(c *gin.Context) {
	var req dto.SubmitArticleRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submit payload"))
			return
		}
	}
	result, err := h.articles.Submit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Get godoc
// @Summary Article detail
// @Tags Articles
// @Produce json
// @Param id path string true "Article ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /articles/{id} [get]
func (h *ArticleHandler) Get(c *gin.Context) {
	view, err := h.articles.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// List godoc
// @Summary List articles
// @Description Editors see the review queue, authors their own articles
// @Tags Articles
// @Produce json
// @Param state query string false "Lifecycle states, comma separated"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /articles [get]
func (h *ArticleHandler) List(c *gin.Context) {
	query := dto.ArticleQuery{States: parseStates(c)}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.PageSize = size
	}
	views, pagination, err := h.articles.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, pagination)
}

// Export godoc
// @Summary Export the review queue
// @Tags Articles
// @Produce text/csv
// @Produce application/pdf
// @Param state query string false "Lifecycle states, comma separated"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /articles/export [get]
func (h *ArticleHandler) Export(c *gin.Context) {
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	body, contentType, err := h.articles.Export(c.Request.Context(), parseStates(c), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="review-queue.%s"`, format))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, body)
}

// DownloadLink godoc
// @Summary Signed manuscript link
// @Tags Articles
// @Produce json
// @Param id path string true "Article ID"
// @Param watermarked query bool false "Link the watermarked copy (default true)"
// @Success 200 {object} response.Envelope
// @Router /articles/{id}/download [get]
func (h *ArticleHandler) DownloadLink(c *gin.Context) {
	watermarked, err := strconv.ParseBool(c.DefaultQuery("watermarked", "true"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "watermarked must be a boolean"))
		return
	}
	link, err := h.articles.DownloadLink(c.Request.Context(), c.Param("id"), watermarked, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, link)
}

// Download godoc
// @Summary Download a manuscript through a signed link
// @Tags Articles
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /files/{token} [get]
func (h *ArticleHandler) Download(c *gin.Context) {
	file, name, err := h.articles.OpenDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, name),
		"Cache-Control":       "private, no-store",
	})
}

func parseStates(c *gin.Context) []models.LifecycleState {
	states := make([]models.LifecycleState, 0)
	for _, raw := range c.QueryArray("state") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				states = append(states, models.LifecycleState(part))
			}
		}
	}
	return states
}
