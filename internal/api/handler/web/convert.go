package web

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/newthinker/dzibridge/internal/api/response"
	"github.com/newthinker/dzibridge/internal/app"
	"github.com/newthinker/dzibridge/internal/bundle"
)

// IndexData holds data for the upload form
type IndexData struct {
	Title       string
	Accept      string
	Descriptors int
}

// ResultData holds data for the conversion result page
type ResultData struct {
	Title       string
	Result      app.Result
	DownloadURL string
	Error       string
}

// Index renders the upload form
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	// a missing output dir just means nothing has been converted yet
	n, _ := h.svc.Descriptors()

	h.render(w, http.StatusOK, "index.html", IndexData{
		Title:       "Upload",
		Accept:      h.accept,
		Descriptors: n,
	})
}

// Convert stages the uploaded image, waits for its conversion and renders
// the counts with a download link.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile(app.UploadField)
	if err != nil {
		h.fail(w, app.UploadError(err))
		return
	}
	defer file.Close()

	staged, err := h.svc.Stage(header.Filename, file)
	if err != nil {
		h.fail(w, err)
		return
	}

	res, err := h.svc.Convert(r.Context(), staged)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.render(w, http.StatusOK, "result.html", ResultData{
		Title:       res.Name,
		Result:      res,
		DownloadURL: "/download/" + url.PathEscape(res.Name),
	})
}

// Download serves a freshly built bundle for the output called name.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rdr, err := h.svc.Bundle(name)
	if err != nil {
		http.Error(w, response.Detail(err).Message, response.StatusFor(err))
		return
	}

	response.Attachment(w, r, bundle.FileName(name), bundle.ContentType, rdr)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	detail := response.Detail(err)
	msg := detail.Message
	if detail.Cause != "" {
		msg = fmt.Sprintf("%s: %s", detail.Message, detail.Cause)
	}
	h.render(w, response.StatusFor(err), "result.html", ResultData{
		Title: "Error",
		Error: msg,
	})
}
