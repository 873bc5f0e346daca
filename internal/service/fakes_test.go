package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/journal-api/internal/dto"
	"github.com/noah-isme/journal-api/internal/models"
	"github.com/noah-isme/journal-api/internal/repository"
)

type txMarker struct{}

// memDB is an in-memory stand-in for Postgres. Transactions are serialised and
// roll back every table on error.
type memDB struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	articles map[string]models.Article
	tokens   map[string]models.ActionToken
	invites  map[string]models.CoAuthorInvitation
	users    map[string]models.User
}

func newMemDB() *memDB {
	return &memDB{
		articles: map[string]models.Article{},
		tokens:   map[string]models.ActionToken{},
		invites:  map[string]models.CoAuthorInvitation{},
		users:    map[string]models.User{},
	}
}

type memSnapshot struct {
	articles map[string]models.Article
	tokens   map[string]models.ActionToken
	invites  map[string]models.CoAuthorInvitation
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := memSnapshot{
		articles: make(map[string]models.Article, len(db.articles)),
		tokens:   make(map[string]models.ActionToken, len(db.tokens)),
		invites:  make(map[string]models.CoAuthorInvitation, len(db.invites)),
	}
	for k, v := range db.articles {
		s.articles[k] = v
	}
	for k, v := range db.tokens {
		s.tokens[k] = v
	}
	for k, v := range db.invites {
		s.invites[k] = v
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.articles, db.tokens, db.invites = s.articles, s.tokens, s.invites
}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()
	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) addUser(id, email, name string, role models.UserRole) models.User {
	u := models.User{ID: id, Email: email, FullName: name, Role: role, Active: true}
	db.mu.Lock()
	db.users[id] = u
	db.mu.Unlock()
	return u
}

func (db *memDB) addArticle(a models.Article) models.Article {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Slug == "" {
		a.Slug = "slug-" + a.ID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
		a.UpdatedAt = a.CreatedAt
	}
	db.mu.Lock()
	db.articles[a.ID] = a
	db.mu.Unlock()
	return a
}

func (db *memDB) article(id string) models.Article {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.articles[id]
}

func (db *memDB) tokensFor(articleID string, purpose models.TokenPurpose) []models.ActionToken {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.ActionToken, 0)
	for _, t := range db.tokens {
		if t.SubjectArticleID == articleID && t.Purpose == purpose {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

func (db *memDB) liveTokens(articleID string, purpose models.TokenPurpose, now time.Time) int {
	n := 0
	for _, t := range db.tokensFor(articleID, purpose) {
		if t.Usable(now) {
			n++
		}
	}
	return n
}

// memArticles implements articleStore.
type memArticles struct {
	db            *memDB
	transitionErr error
}

func (r *memArticles) Create(ctx context.Context, a *models.Article) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.articles {
		if existing.Slug == a.Slug {
			return repository.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UpdatedAt = a.CreatedAt
	r.db.articles[a.ID] = *a
	return nil
}

func (r *memArticles) GetByID(ctx context.Context, id string) (*models.Article, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.articles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r *memArticles) LockByID(ctx context.Context, id string) (*models.Article, error) {
	if ctx.Value(txMarker{}) == nil {
		return nil, errors.New("lock article: transaction required")
	}
	return r.GetByID(ctx, id)
}

func (r *memArticles) UpdateDraft(ctx context.Context, id, title, slug string) (*models.Article, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.articles[id]
	if !ok || a.LifecycleState != models.StateDraft {
		return nil, sql.ErrNoRows
	}
	for otherID, other := range r.db.articles {
		if otherID != id && other.Slug == slug {
			return nil, repository.ErrDuplicate
		}
	}
	a.Title, a.Slug, a.UpdatedAt = title, slug, time.Now().UTC()
	r.db.articles[id] = a
	return &a, nil
}

func (r *memArticles) Transition(ctx context.Context, p repository.TransitionParams) (*models.Article, error) {
	if r.transitionErr != nil {
		return nil, r.transitionErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.articles[p.ArticleID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	allowed := false
	for _, s := range p.From {
		if s == a.LifecycleState {
			allowed = true
		}
	}
	if !allowed {
		return nil, sql.ErrNoRows
	}
	a.LifecycleState = p.To
	a.RejectionReason = nil
	if p.To == models.StateRejected {
		a.RejectionReason = p.RejectionReason
	}
	a.UpdatedAt = p.At
	for _, set := range p.Set {
		switch set.Column {
		case "utr_number":
			a.UTRNumber = stringPtr(set.Value)
		case "payment_note":
			a.PaymentNote = stringPtr(set.Value)
		case "watermarked_file_url":
			a.WatermarkedFileURL = stringPtr(set.Value)
		case "submitted_at":
			a.SubmittedAt = timePtr(set.Value)
		case "approved_at":
			a.ApprovedAt = timePtr(set.Value)
		case "payment_submitted_at":
			a.PaymentSubmittedAt = timePtr(set.Value)
		case "published_at":
			a.PublishedAt = timePtr(set.Value)
		default:
			return nil, fmt.Errorf("column %q not writable", set.Column)
		}
	}
	r.db.articles[a.ID] = a
	return &a, nil
}

func (r *memArticles) List(ctx context.Context, filter models.ArticleFilter) ([]models.Article, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	matched := make([]models.Article, 0)
	for _, a := range r.db.articles {
		if filter.AuthorID != "" && a.AuthorID != filter.AuthorID {
			continue
		}
		if len(filter.States) > 0 {
			found := false
			for _, s := range filter.States {
				found = found || s == a.LifecycleState
			}
			if !found {
				continue
			}
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func stringPtr(v interface{}) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		return s
	default:
		return nil
	}
}

func timePtr(v interface{}) *time.Time {
	if t, ok := v.(time.Time); ok {
		return &t
	}
	return nil
}

// memTokens implements actionTokenRepository.
type memTokens struct {
	db *memDB
}

func (r *memTokens) Create(ctx context.Context, t *models.ActionToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.tokens {
		if existing.TokenHash == t.TokenHash {
			return repository.ErrDuplicate
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	stored := *t
	stored.Value = ""
	r.db.tokens[t.ID] = stored
	return nil
}

func (r *memTokens) SupersedeLive(ctx context.Context, purpose models.TokenPurpose, articleID, userID string, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, t := range r.db.tokens {
		if t.Purpose == purpose && t.SubjectArticleID == articleID && t.SubjectUserID == userID && t.ConsumedAt == nil && t.SupersededAt == nil {
			at := at
			t.SupersededAt = &at
			r.db.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r *memTokens) GetByHash(ctx context.Context, hash string) (*models.ActionToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memTokens) Claim(ctx context.Context, hash string, purpose models.TokenPurpose, now time.Time) (*models.ActionToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, t := range r.db.tokens {
		if t.TokenHash == hash && t.Purpose == purpose && t.ConsumedAt == nil && t.SupersededAt == nil && now.Before(t.ExpiresAt) {
			t.ConsumedAt = &now
			r.db.tokens[id] = t
			return &t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memTokens) Rearm(ctx context.Context, purpose models.TokenPurpose, articleID string, expiresAt time.Time) (*models.ActionToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var latest *models.ActionToken
	for _, t := range r.db.tokens {
		t := t
		if t.Purpose == purpose && t.SubjectArticleID == articleID && t.SupersededAt == nil && t.ConsumedAt != nil {
			if latest == nil || t.IssuedAt.After(latest.IssuedAt) {
				latest = &t
			}
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	latest.ConsumedAt = nil
	latest.ExpiresAt = expiresAt
	r.db.tokens[latest.ID] = *latest
	return latest, nil
}

// memCoAuthors implements coauthorStore.
type memCoAuthors struct {
	db *memDB
}

func (r *memCoAuthors) GetByArticleAndUser(ctx context.Context, articleID, userID string) (*models.CoAuthorInvitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, inv := range r.db.invites {
		if inv.ArticleID == articleID && inv.CoAuthorUserID == userID {
			return &inv, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memCoAuthors) Create(ctx context.Context, inv *models.CoAuthorInvitation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.invites {
		if existing.ArticleID == inv.ArticleID && existing.CoAuthorUserID == inv.CoAuthorUserID {
			return repository.ErrDuplicate
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.CreatedAt = time.Now().UTC().Add(time.Duration(len(r.db.invites)) * time.Microsecond)
	r.db.invites[inv.ID] = *inv
	return nil
}

func (r *memCoAuthors) Rebind(ctx context.Context, id, tokenID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inv, ok := r.db.invites[id]
	if !ok || inv.Accepted {
		return sql.ErrNoRows
	}
	inv.TokenID, inv.InvitedAt = &tokenID, at
	r.db.invites[id] = inv
	return nil
}

func (r *memCoAuthors) MarkAccepted(ctx context.Context, id string, at time.Time) (*models.CoAuthorInvitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inv, ok := r.db.invites[id]
	if !ok || inv.Accepted {
		return nil, sql.ErrNoRows
	}
	inv.Accepted, inv.AcceptedAt = true, &at
	r.db.invites[id] = inv
	return &inv, nil
}

func (r *memCoAuthors) ListByArticle(ctx context.Context, articleID string) ([]models.CoAuthorInvitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.CoAuthorInvitation, 0)
	for _, inv := range r.db.invites {
		if inv.ArticleID == articleID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memUsers implements userDirectory.
type memUsers struct {
	db *memDB
}

func (r *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r *memUsers) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok && u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memUsers) ListByRoles(ctx context.Context, roles ...models.UserRole) ([]models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.User, 0)
	for _, u := range r.db.users {
		for _, role := range roles {
			if u.Role == role && u.Active {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	fail bool
}

func (n *recordingNotifier) Dispatch(ctx context.Context, msg models.Notification) dto.NotificationOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.fail {
		return dto.NotificationOutcome{Attempted: true, Error: "smtp unavailable"}
	}
	return dto.NotificationOutcome{Attempted: true, Sent: true, LogID: uuid.NewString()}
}

func (n *recordingNotifier) byTemplate(id string) []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, msg := range n.sent {
		if msg.TemplateID == id {
			out = append(out, msg)
		}
	}
	return out
}

// stubStamper records stamp requests.
type stubStamper struct {
	mu     sync.Mutex
	labels []string
	err    error
}

func (s *stubStamper) Stamp(ctx context.Context, a *models.Article, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.labels = append(s.labels, label)
	return fmt.Sprintf("articles/%s/watermark-%d.pdf", a.ID, len(s.labels)), nil
}

// workflowFixture wires every workflow service over one memDB.
type workflowFixture struct {
	db       *memDB
	articles *memArticles
	notifier *recordingNotifier
	stamper  *stubStamper
	tokens   *TokenStore
	clock    *fakeClock
	actions  *ArticleActionService
	payments *PaymentService
	coauthor *CoAuthorService
	editor   *models.JWTClaims
	author   *models.JWTClaims
	cfg      WorkflowSettings
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newWorkflowFixture() *workflowFixture {
	db := newMemDB()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	db.addUser("editor-1", "editor@journal.test", "Eda Editor", models.RoleEditor)
	db.addUser("author-1", "author@journal.test", "Ari Author", models.RoleAuthor)
	db.addUser("co-1", "co1@journal.test", "Cora One", models.RoleAuthor)
	db.addUser("co-2", "co2@journal.test", "Cal Two", models.RoleAuthor)
	db.addUser("co-3", "co3@journal.test", "Cam Three", models.RoleAuthor)

	cfg := WorkflowSettings{
		UTRTokenTTL:        48 * time.Hour,
		CoAuthorTokenTTL:   72 * time.Hour,
		MaxCoAuthors:       2,
		RejectionReasonMin: 10,
		PublicBaseURL:      "https://journal.test",
		Payment:            dto.PaymentInstructions{Fee: "INR 2500", AccountName: "Journal", AccountNumber: "000123", IFSC: "TEST0001", BankName: "Test Bank"},
		EditorEmails:       []string{"desk@journal.test", "EDITOR@journal.test"},
	}
	articles := &memArticles{db: db}
	users := &memUsers{db: db}
	notifier := &recordingNotifier{}
	stamper := &stubStamper{}
	tokens := NewTokenStore(&memTokens{db: db}, nil, nil)
	tokens.now = clock.Now

	actions := NewArticleActionService(db, articles, tokens, users, notifier, stamper, nil, nil, cfg)
	actions.now = clock.Now
	payments := NewPaymentService(db, articles, tokens, users, notifier, nil, nil, cfg)
	payments.now = clock.Now
	coauthor := NewCoAuthorService(db, articles, &memCoAuthors{db: db}, tokens, users, notifier, nil, cfg)
	coauthor.now = clock.Now

	return &workflowFixture{
		db:       db,
		articles: articles,
		notifier: notifier,
		stamper:  stamper,
		tokens:   tokens,
		clock:    clock,
		actions:  actions,
		payments: payments,
		coauthor: coauthor,
		editor:   &models.JWTClaims{UserID: "editor-1", Role: models.RoleEditor},
		author:   &models.JWTClaims{UserID: "author-1", Role: models.RoleAuthor},
		cfg:      cfg.withDefaults(),
	}
}

func (f *workflowFixture) seedArticle(state models.LifecycleState) models.Article {
	return f.db.addArticle(models.Article{
		AuthorID:       "author-1",
		Title:          "On Precedent",
		LifecycleState: state,
		FileURL:        "articles/x/manuscript.pdf",
		CreatedAt:      f.clock.Now(),
		UpdatedAt:      f.clock.Now(),
	})
}

// approve runs Approve and returns the raw UTR token value issued with it.
func (f *workflowFixture) approve(articleID string) string {
	if _, err := f.actions.Approve(context.Background(), articleID, f.editor); err != nil {
		panic(err)
	}
	sent := f.notifier.byTemplate(models.TemplateArticleApproved)
	return tokenFromLink(sent[len(sent)-1].Params["link"])
}

func tokenFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
