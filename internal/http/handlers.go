package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/articles"
	"blogpress/app/internal/consistency"
	"blogpress/app/internal/content"
	applog "blogpress/app/internal/log"
	"blogpress/app/internal/registry"
)

const (
	jsonContentType = "application/json"
	// isoMillis matches the timestamps the editor produces with Date.toISOString.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
	// maxBodyBytes bounds request bodies; a full registry plus inline images stays well below it.
	maxBodyBytes = 32 << 20
)

type resultBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Backup    string `json:"backup,omitempty" doc:"File name of the backup taken before the write"`
	Error     string `json:"error,omitempty"`
}

type resultResponse struct {
	Status int
	Body   resultBody
}

type errorBody struct {
	Error string `json:"error"`
}

type saveDatabaseInput struct {
	Body struct {
		_       struct{} `json:"-" additionalProperties:"true"`
		Content string   `json:"content,omitempty" doc:"Complete registry source file"`
	} `required:"false"`
}

type saveArticleInput struct {
	Body struct {
		_     struct{}          `json:"-" additionalProperties:"true"`
		Code  string            `json:"code,omitempty" doc:"Article code, e.g. ART001"`
		Files map[string]string `json:"files,omitempty" doc:"HTML document per language"`
	} `required:"false"`
}

type saveArticleResponse struct {
	Status int
	Body   struct {
		Success bool     `json:"success"`
		Written []string `json:"written"`
		Error   string   `json:"error,omitempty"`
	}
}

type deleteArticleInput struct {
	Body struct {
		_         struct{} `json:"-" additionalProperties:"true"`
		Code      string   `json:"code,omitempty"`
		Languages []string `json:"languages,omitempty" doc:"Defaults to every configured language"`
	} `required:"false"`
}

type deleteArticleResponse struct {
	Status int
	Body   struct {
		Success bool     `json:"success"`
		Deleted []string `json:"deleted"`
		Error   string   `json:"error,omitempty"`
	}
}

type databaseStatusResponse struct {
	Status int
	Body   struct {
		Exists   bool       `json:"exists"`
		Size     int64      `json:"size,omitempty"`
		Modified *time.Time `json:"modified,omitempty"`
		Path     string     `json:"path,omitempty"`
		Error    string     `json:"error,omitempty"`
	}
}

type articleExistsInput struct {
	Code string `query:"code"`
	Lang string `query:"lang"`
}

type articleExistsResponse struct {
	Status int
	Body   struct {
		Exists bool   `json:"exists"`
		Error  string `json:"error,omitempty"`
	}
}

type nextCodeResponse struct {
	Status int
	Body   struct {
		Code  string `json:"code,omitempty"`
		Error string `json:"error,omitempty"`
	}
}

type listArticlesInput struct {
	Category string `query:"category"`
	Lang     string `query:"lang"`
}

type listArticlesResponse struct {
	Status int
	Body   struct {
		Articles []content.ArticleRecord `json:"articles"`
		Error    string                  `json:"error,omitempty"`
	}
}

type getArticleInput struct {
	Code string `path:"code"`
}

type getArticleResponse struct {
	Status int
	Body   any
}

type registryCheckInput struct {
	Cached bool `query:"cached" doc:"Return the last completed report instead of running a new check"`
}

type registryCheckResponse struct {
	Status int
	Body   any
}

type backupView struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

type backupsResponse struct {
	Status int
	Body   struct {
		Backups []backupView `json:"backups"`
		Error   string       `json:"error,omitempty"`
	}
}

type healthResponse struct {
	Status int
	Body   struct {
		Status      string `json:"status"`
		ContentRoot string `json:"contentRoot"`
	}
}

func (s *Server) registerSaveDatabaseRoute() {
	huma.Post(s.api, "/api/save-database", s.saveDatabaseHandler, jsonOperation(
		"Replace the registry source file",
		stdhttp.StatusBadRequest,
		stdhttp.StatusTooManyRequests,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerSaveArticleRoute() {
	huma.Post(s.api, "/api/save-article", s.saveArticleHandler, jsonOperation(
		"Write the HTML documents of an article",
		stdhttp.StatusBadRequest,
		stdhttp.StatusTooManyRequests,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerDeleteArticleRoute() {
	huma.Post(s.api, "/api/delete-article", s.deleteArticleHandler, jsonOperation(
		"Delete the HTML documents of an article",
		stdhttp.StatusBadRequest,
		stdhttp.StatusTooManyRequests,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerDatabaseStatusRoute() {
	huma.Get(s.api, "/api/database-status", s.databaseStatusHandler, jsonOperation(
		"Describe the registry file",
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerArticleExistsRoute() {
	huma.Get(s.api, "/api/article-exists", s.articleExistsHandler, jsonOperation(
		"Check whether an article document exists",
		stdhttp.StatusBadRequest,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerNextCodeRoute() {
	huma.Get(s.api, "/api/next-code", s.nextCodeHandler, jsonOperation(
		"Compute the next free article code",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerArticlesRoutes() {
	huma.Get(s.api, "/api/articles", s.listArticlesHandler, jsonOperation(
		"List registry records",
		stdhttp.StatusInternalServerError,
	))
	huma.Get(s.api, "/api/articles/{code}", s.getArticleHandler, jsonOperation(
		"Fetch one registry record",
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerRegistryCheckRoute() {
	huma.Get(s.api, "/api/registry-check", s.registryCheckHandler, jsonOperation(
		"Reconcile the registry with the article files",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerBackupsRoute() {
	huma.Get(s.api, "/api/backups", s.backupsHandler, jsonOperation(
		"List registry backups, newest first",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) saveDatabaseHandler(ctx context.Context, input *saveDatabaseInput) (*resultResponse, error) {
	result, err := s.registry.Write(ctx, input.Body.Content)
	if err != nil {
		status := s.handleError(ctx, err, "saving registry", nil)
		return &resultResponse{Status: status, Body: resultBody{Error: publicMessage(err)}}, nil
	}

	return &resultResponse{
		Status: stdhttp.StatusOK,
		Body: resultBody{
			Success:   true,
			Message:   "Database updated successfully",
			Timestamp: result.Timestamp.UTC().Format(isoMillis),
			Backup:    result.Backup,
		},
	}, nil
}

func (s *Server) saveArticleHandler(ctx context.Context, input *saveArticleInput) (*saveArticleResponse, error) {
	code := input.Body.Code
	written, err := s.articles.Save(ctx, code, input.Body.Files)

	resp := &saveArticleResponse{Status: stdhttp.StatusOK}
	resp.Body.Written = written
	if resp.Body.Written == nil {
		resp.Body.Written = []string{}
	}

	if err != nil {
		fields := logrus.Fields{"code": code}
		var partial *articles.PartialWriteError
		if errors.As(err, &partial) {
			fields["lang"] = partial.Lang
			fields["written"] = strings.Join(partial.Written, ", ")
		}
		resp.Status = s.handleError(ctx, err, "saving article", fields)
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	resp.Body.Success = true
	return resp, nil
}

func (s *Server) deleteArticleHandler(ctx context.Context, input *deleteArticleInput) (*deleteArticleResponse, error) {
	code := input.Body.Code
	deleted, err := s.articles.Delete(ctx, code, input.Body.Languages)

	resp := &deleteArticleResponse{Status: stdhttp.StatusOK}
	resp.Body.Deleted = deleted
	if resp.Body.Deleted == nil {
		resp.Body.Deleted = []string{}
	}

	if err != nil {
		resp.Status = s.handleError(ctx, err, "deleting article", logrus.Fields{"code": code})
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	resp.Body.Success = true
	return resp, nil
}

func (s *Server) databaseStatusHandler(ctx context.Context, _ *struct{}) (*databaseStatusResponse, error) {
	status, err := s.registry.Status(ctx)
	resp := &databaseStatusResponse{Status: stdhttp.StatusOK}
	if err != nil {
		resp.Status = s.handleError(ctx, err, "reading registry status", nil)
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	modified := status.Modified
	resp.Body.Exists = true
	resp.Body.Size = status.Size
	resp.Body.Modified = &modified
	resp.Body.Path = status.Path
	return resp, nil
}

func (s *Server) articleExistsHandler(ctx context.Context, input *articleExistsInput) (*articleExistsResponse, error) {
	resp := &articleExistsResponse{Status: stdhttp.StatusOK}
	if input.Code == "" || input.Lang == "" {
		resp.Status = stdhttp.StatusBadRequest
		resp.Body.Error = "Invalid query: requires code and lang"
		return resp, nil
	}

	exists, err := s.articles.Exists(ctx, input.Code, input.Lang)
	if err != nil {
		resp.Status = s.handleError(ctx, err, "checking article", logrus.Fields{"code": input.Code, "lang": input.Lang})
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	resp.Body.Exists = exists
	return resp, nil
}

func (s *Server) nextCodeHandler(ctx context.Context, _ *struct{}) (*nextCodeResponse, error) {
	resp := &nextCodeResponse{Status: stdhttp.StatusOK}
	code, err := s.registry.NextCode(ctx)
	if err != nil {
		resp.Status = stdhttp.StatusInternalServerError
		s.recordError(ctx, err, "computing next code", nil)
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	resp.Body.Code = code
	return resp, nil
}

func (s *Server) listArticlesHandler(ctx context.Context, input *listArticlesInput) (*listArticlesResponse, error) {
	resp := &listArticlesResponse{Status: stdhttp.StatusOK}
	reg, err := s.registry.Load(ctx)
	if err != nil {
		resp.Status = stdhttp.StatusInternalServerError
		s.recordError(ctx, err, "loading registry", nil)
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	var records []content.ArticleRecord
	switch {
	case input.Category != "" && input.Lang != "":
		records = reg.ByCategoryAndLanguage(input.Category, input.Lang)
	case input.Category != "":
		records = reg.ByCategory(input.Category)
	case input.Lang != "":
		records = reg.ByLanguage(input.Lang)
	default:
		records = reg.All()
	}
	if records == nil {
		records = []content.ArticleRecord{}
	}

	resp.Body.Articles = records
	return resp, nil
}

func (s *Server) getArticleHandler(ctx context.Context, input *getArticleInput) (*getArticleResponse, error) {
	reg, err := s.registry.Load(ctx)
	if err != nil {
		s.recordError(ctx, err, "loading registry", logrus.Fields{"code": input.Code})
		return &getArticleResponse{
			Status: stdhttp.StatusInternalServerError,
			Body:   resultBody{Error: publicMessage(err)},
		}, nil
	}

	record, ok := reg.Get(input.Code)
	if !ok {
		return &getArticleResponse{
			Status: stdhttp.StatusNotFound,
			Body:   resultBody{Error: content.ErrNotFound.Error()},
		}, nil
	}

	return &getArticleResponse{Status: stdhttp.StatusOK, Body: record}, nil
}

func (s *Server) registryCheckHandler(ctx context.Context, input *registryCheckInput) (*registryCheckResponse, error) {
	if input.Cached {
		if report, ok := s.checker.Last(); ok {
			if report.Issues == nil {
				report.Issues = []consistency.Issue{}
			}
			return &registryCheckResponse{Status: stdhttp.StatusOK, Body: report}, nil
		}
	}

	report, err := s.checker.Check(ctx)
	if err != nil {
		s.recordError(ctx, err, "running registry check", nil)
		return &registryCheckResponse{
			Status: stdhttp.StatusInternalServerError,
			Body:   resultBody{Error: publicMessage(err)},
		}, nil
	}

	if report.Issues == nil {
		report.Issues = []consistency.Issue{}
	}
	return &registryCheckResponse{Status: stdhttp.StatusOK, Body: report}, nil
}

func (s *Server) backupsHandler(ctx context.Context, _ *struct{}) (*backupsResponse, error) {
	resp := &backupsResponse{Status: stdhttp.StatusOK}
	backups, err := s.registry.Backups(ctx)
	if err != nil {
		resp.Status = stdhttp.StatusInternalServerError
		s.recordError(ctx, err, "listing backups", nil)
		resp.Body.Error = publicMessage(err)
		return resp, nil
	}

	resp.Body.Backups = make([]backupView, 0, len(backups))
	for _, b := range backups {
		resp.Body.Backups = append(resp.Body.Backups, backupView{Name: b.Name, Size: b.Size, Created: b.Created})
	}
	return resp, nil
}

func (s *Server) healthHandler(_ context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{Status: stdhttp.StatusOK}
	resp.Body.Status = "ok"
	resp.Body.ContentRoot = "ok"

	if !s.contentRootAvailable() {
		resp.Status = stdhttp.StatusServiceUnavailable
		resp.Body.Status = "degraded"
		resp.Body.ContentRoot = "missing"
	}

	return resp, nil
}

func jsonOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		op.MaxBodyBytes = maxBodyBytes
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}
		for _, status := range statuses {
			op.Responses[strconv.Itoa(status)] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					jsonContentType: {Schema: &huma.Schema{Type: "object"}},
				},
			}
		}
	}
}

// classifyError maps store errors onto HTTP statuses.
func classifyError(err error) int {
	switch {
	case err == nil:
		return stdhttp.StatusOK
	case errors.Is(err, content.ErrValidation):
		return stdhttp.StatusBadRequest
	case eris.Is(err, registry.ErrNotFound), eris.Is(err, content.ErrNotFound):
		return stdhttp.StatusNotFound
	default:
		return stdhttp.StatusInternalServerError
	}
}

// publicMessage returns the reason shown to the editor: the validation reason for rejected
// payloads and the full error chain otherwise.
func publicMessage(err error) string {
	var verr *content.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	if eris.Is(err, registry.ErrNotFound) {
		return registry.ErrNotFound.Error()
	}
	return err.Error()
}

// handleError logs err at a level matching its class and returns the response status.
func (s *Server) handleError(ctx context.Context, err error, message string, fields logrus.Fields) int {
	status := classifyError(err)
	if status >= stdhttp.StatusInternalServerError {
		s.recordError(ctx, err, message, fields)
		return status
	}

	if s.logger != nil {
		entry := s.logger.WithField("reason", publicMessage(err)).WithField("status", status)
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Warn(message + " rejected")
	}
	return status
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = s.sentry
	}
	tags := map[string]string{"operation": message}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		tags["request_id"] = requestID
	}
	applog.Capture(hub, err, tags)
}

func writeJSON(w stdhttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_, _ = w.Write(mustMarshal(body))
}

func mustMarshal(body any) []byte {
	data, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"error":"internal server error"}`)
	}
	return data
}
