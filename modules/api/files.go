package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/kathanp/emailbot/handler"
	svccontacts "github.com/kathanp/emailbot/svc/contacts"
	"github.com/kathanp/emailbot/svc/store"
)

// uploadFormField is the multipart field carrying the CSV.
const uploadFormField = "file"

type idRequest struct {
	ID string `path:"id" validate:"required"`
}

// uploadFile streams the first "file" part into the contacts service without
// buffering the whole form.
func (a *API) uploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := handler.NewContext(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, svccontacts.MaxUploadBytes+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		a.onError(ctx, handler.ErrUnsupportedMediaType)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			a.onError(ctx, handler.ValidationError{uploadFormField: {"is required"}})
			return
		}
		if err != nil {
			a.onError(ctx, uploadError(err))
			return
		}
		if part.FormName() != uploadFormField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		f, err := a.deps.Files.Upload(r.Context(), userID(r.Context()), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			a.onError(ctx, uploadError(err))
			return
		}
		if err := handler.Created(newFileView(f, false)).Render(w, r); err != nil {
			a.onError(ctx, err)
		}
		return
	}
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return svccontacts.ErrFileTooLarge
	}
	return err
}

func (a *API) listFiles(ctx handler.Context, _ struct{}) handler.Response {
	files, err := a.deps.Files.List(ctx, userID(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(viewAll(files, func(f *store.ContactFile) fileView { return newFileView(f, false) }))
}

func (a *API) getFile(ctx handler.Context, req idRequest) handler.Response {
	f, err := a.deps.Files.Get(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(newFileView(f, true))
}

func (a *API) deleteFile(ctx handler.Context, req idRequest) handler.Response {
	if err := a.deps.Files.Delete(ctx, userID(ctx), req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func (a *API) downloadFile(ctx handler.Context, req idRequest) handler.Response {
	rc, f, err := a.deps.Files.Open(ctx, userID(ctx), req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return attachment{body: rc, name: f.Filename, size: f.Size}
}

// attachment streams a stored upload back to the client.
type attachment struct {
	body io.ReadCloser
	name string
	size int64
}

func (a attachment) Render(w http.ResponseWriter, _ *http.Request) error {
	defer a.body.Close()
	h := w.Header()
	h.Set("Content-Type", "text/csv; charset=utf-8")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.name}))
	if a.size > 0 {
		h.Set("Content-Length", fmt.Sprint(a.size))
	}
	w.WriteHeader(http.StatusOK)
	// Headers are sent; a failed copy can only be a dropped connection.
	_, _ = io.Copy(w, a.body)
	return nil
}
