package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jo-hoe/leafdoctor/internal/common"
	"github.com/jo-hoe/leafdoctor/internal/diagnosis"
	"github.com/jo-hoe/leafdoctor/internal/image"
	"github.com/jo-hoe/leafdoctor/internal/storage"
	"github.com/jo-hoe/leafdoctor/internal/web"
)

// User-facing messages per failure category.
const (
	MsgMissingInput = "Please upload a leaf image or take a picture to proceed with the analysis."
	msgInvalidInput = "File Error: %v"
	msgServiceError = "Diagnosis service error: %v"
	msgUnexpected   = "An unexpected error occurred during analysis: %v"
)

var (
	errUnknownSource = errors.New("unknown image source")
	errInvalidForm   = errors.New("invalid form")
)

// outcome is the result of one submission: either Markdown or Err is set, never both.
type outcome struct {
	ID       string
	Source   string
	Markdown string
	Err      error
}

// failure is how an error is shown to the user.
type failure struct {
	Category string
	Status   int
	Message  string
}

func (svc *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	svc.renderPage(w, r, http.StatusOK, web.Page{})
}

func (svc *Service) handleDiagnoseForm(w http.ResponseWriter, r *http.Request) {
	out := svc.submit(r)
	page := web.Page{ID: out.ID, Source: out.Source}
	if out.Err != nil {
		f := classify(out.Err)
		if f.Category == common.CategoryMissingInput {
			page.Warning = f.Message
		} else {
			page.Error = f.Message
		}
		svc.renderPage(w, r, f.Status, page)
		return
	}
	page.Markdown = out.Markdown
	page.Report = web.RenderMarkdown(out.Markdown)
	svc.renderPage(w, r, http.StatusOK, page)
}

type diagnosisResponse struct {
	ID       string `json:"id"`
	Markdown string `json:"markdown"`
}

type errorResponse struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

func (svc *Service) handleDiagnoseAPI(w http.ResponseWriter, r *http.Request) {
	out := svc.submit(r)
	if out.Err != nil {
		f := classify(out.Err)
		writeJSON(w, f.Status, errorResponse{ID: out.ID, Category: f.Category, Error: f.Message})
		return
	}
	writeJSON(w, http.StatusOK, diagnosisResponse{ID: out.ID, Markdown: out.Markdown})
}

func (svc *Service) renderPage(w http.ResponseWriter, r *http.Request, status int, page web.Page) {
	w.Header().Set(common.HeaderContentType, common.ContentTypeHTML)
	w.WriteHeader(status)
	if err := svc.templates().ExecuteTemplate(w, web.PageTemplate, page); err != nil {
		svc.logger().Error("template error", "err", err, "request_id", page.ID)
	}
}

// submit reads, normalizes and diagnoses the image of one request. Every failure,
// including a panic, comes back in outcome.Err.
func (svc *Service) submit(r *http.Request) (out outcome) {
	out.ID = chimw.GetReqID(r.Context())
	log := svc.logger().With("request_id", out.ID)

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			out.Markdown = ""
			out.Err = fmt.Errorf("panic: %v", rec)
			log.Error("submission panicked", "err", out.Err)
		}
	}()

	rec, source, err := svc.readRecord(r)
	out.Source = source
	if err != nil {
		out.Err = err
		log.Info("submission rejected", "source", source, "err", err)
		return out
	}
	log.Info("submission accepted", "source", source, "mime", rec.MimeType(), "bytes", rec.Len())

	md, err := svc.Requester.Request(r.Context(), rec)
	if err != nil {
		out.Err = err
		return out
	}
	out.Markdown = md
	return out
}

// readRecord extracts exactly one image from the multipart body. When the form names
// its source only that part is read; otherwise both parts are considered and must not
// both be present.
func (svc *Service) readRecord(r *http.Request) (image.Record, string, error) {
	// The body is already capped, so keeping the whole form in memory means no temp files.
	if err := r.ParseMultipartForm(svc.bodyLimit()); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return image.Record{}, "", image.ErrMissingInput
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return image.Record{}, "", fmt.Errorf("%w: request exceeds %d bytes", storage.ErrTooLarge, mbe.Limit)
		}
		return image.Record{}, "", fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	source := strings.ToLower(strings.TrimSpace(r.FormValue(common.FormFieldSource)))
	fileHeader := firstFile(r.MultipartForm, common.FormFieldFile)
	captureHeader := firstFile(r.MultipartForm, common.FormFieldCapture)
	switch source {
	case common.SourceUpload:
		captureHeader = nil
	case common.SourceCamera:
		fileHeader = nil
	case "":
	default:
		return image.Record{}, source, fmt.Errorf("%w: %q", errUnknownSource, source)
	}

	reader := svc.Reader
	if reader == nil {
		reader = storage.NewReader(svc.maxUpload())
	}

	var upload *image.Uploaded
	if fileHeader != nil {
		up, err := reader.ReadImage(fileHeader)
		if err != nil {
			return image.Record{}, source, err
		}
		upload = up
	}
	captured, err := reader.ReadCapture(captureHeader)
	if err != nil {
		return image.Record{}, source, err
	}

	src, err := image.SourceFrom(upload, captured)
	if err != nil {
		return image.Record{}, source, err
	}
	rec, err := image.Normalize(src)
	return rec, source, err
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if fhs := form.File[field]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

func classify(err error) failure {
	var se *diagnosis.ServiceError
	switch {
	case errors.Is(err, image.ErrMissingInput):
		return failure{Category: common.CategoryMissingInput, Status: http.StatusBadRequest, Message: MsgMissingInput}
	case errors.As(err, &se):
		return failure{Category: common.CategoryServiceError, Status: http.StatusBadGateway, Message: fmt.Sprintf(msgServiceError, se.Cause)}
	case errors.Is(err, image.ErrConflictingInput),
		errors.Is(err, image.ErrMissingMimeType),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrTooLarge),
		errors.Is(err, errUnknownSource),
		errors.Is(err, errInvalidForm):
		return failure{Category: common.CategoryInvalidInput, Status: http.StatusBadRequest, Message: fmt.Sprintf(msgInvalidInput, err)}
	}
	return failure{Category: common.CategoryUnexpectedError, Status: http.StatusInternalServerError, Message: fmt.Sprintf(msgUnexpected, err)}
}
