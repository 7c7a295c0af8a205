// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package upload // import "blitznote.com/src/sendfile"

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"blitznote.com/src/sendfile/logger"
	"blitznote.com/src/sendfile/protofile"
)

// ErrClientGone is the cause of every error reported for requests whose client
// hung up before having sent everything.
var ErrClientGone = errors.New("client went away before the upload was complete")

var (
	errNotMultipart      = errors.New("expected a multipart/form-data body")
	errMissingFieldName  = errors.New("part without a field name")
	errLengthMismatch    = errors.New("part does not match its declared Content-Length")
	errTooLarge          = errors.New("upload exceeds the size limit")
	errNameCollisions    = errors.New("every alternative name is taken")
	errFilenameRejected  = errors.New("filename is outside the permitted alphabet")
	errMethodNotAccepted = errors.New("only POST is accepted")
)

// Received parts without a Content-Type are plain text, per RFC 7578.
const defaultPartContentType = "text/plain"

type clientGoneError struct{ cause error }

func (e clientGoneError) Error() string        { return ErrClientGone.Error() + ": " + e.cause.Error() }
func (e clientGoneError) Unwrap() error        { return e.cause }
func (e clientGoneError) Is(target error) bool { return target == ErrClientGone }

// Field describes one part of a multipart upload.
type Field struct {
	Name        string `json:"field"`
	FileName    string `json:"filename,omitempty"` // as sent by the client
	SavedAs     string `json:"saved_as,omitempty"` // empty for parts which have been ignored
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// Result is the outcome of one request.
type Result struct {
	Status   int
	Fields   []Field // in order of arrival; only those which have been received completely
	Err      error
	Duration time.Duration
}

// Succeeded is true if every part has been received and stored.
func (r Result) Succeeded() bool { return r.Err == nil && r.Status < 300 }

// Aborted is true if the client went away mid-request.
func (r Result) Aborted() bool { return errors.Is(r.Err, ErrClientGone) }

// Handler receives multipart uploads and stores the files therein.
//
// If possible, i. e. if the operating- and filesystem implements it,
// files will not emerge before their upload is completed.
// This is of importance to software that monitors a set of paths and
// reacts to new files.
type Handler struct {
	Config *Configuration

	// OnComplete, if set, is called with the outcome of every request
	// after the response has been written.
	OnComplete func(Result)

	dir *Directory
}

// NewHandler creates a new instance of this plugin's upload handler,
// meant to be used with a router.
//
// Leftovers of interrupted uploads in the destination are removed here.
func NewHandler(config *Configuration) (*Handler, error) {
	if config == nil {
		return nil, errors.New("upload: configuration is missing")
	}
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "upload")
	}

	h := &Handler{
		Config: config,
		dir:    NewDirectory(config.WriteToPath),
	}
	if config.SweepStaleAfter > 0 {
		removed, err := protofile.Sweep(config.WriteToPath, config.SweepStaleAfter)
		for _, path := range removed {
			logger.Info("removed leftover of an interrupted upload", "path", path)
		}
		if err != nil {
			logger.Warn("cannot sweep the destination", "path", config.WriteToPath, "error", err)
		}
	}
	return h, nil
}

// Destination is the directory which receives files.
func (h *Handler) Destination() *Directory { return h.dir }

// ServeHTTP accepts POST with a multipart/form-data body.
//
//	curl -F file=@report.pdf <url>
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var res Result
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		res.Status, res.Err = http.StatusMethodNotAllowed, errMethodNotAccepted
	} else {
		res.Status, res.Fields, res.Err = h.ServeMultipartUpload(w, r)
	}
	res.Duration = time.Since(start)

	h.report(r, res)
	h.respond(w, res)
	if h.OnComplete != nil {
		h.OnComplete(res)
	}
}

// ServeMultipartUpload unwraps the parts of the request in order of arrival,
// and feeds those with a filename to WriteFileFromReader.
//
// Parts without a filename are read and ignored.
// Stops at the first failing part, whose error is returned along with an HTTP status code.
func (h *Handler) ServeMultipartUpload(w http.ResponseWriter, r *http.Request) (int, []Field, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return http.StatusUnsupportedMediaType, nil, errNotMultipart
	}

	// Counts payload only. The envelope is up to whoever limits the request body.
	left := int64(math.MaxInt64)
	if m := h.Config.MaxTransactionSize; m > 0 && m < math.MaxInt64 {
		left = int64(m)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return http.StatusBadRequest, nil, errors.Wrap(err, "malformed multipart envelope")
	}

	ctx := r.Context()
	fields := make([]Field, 0, 1)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			code, err := classify(readError{err})
			return code, fields, err
		}

		field, code, err := h.receivePart(ctx, part, left)
		if err != nil {
			// Not closing the part, which would drain it.
			logger.CoreFrom(ctx).Debug("part failed",
				"field", field.Name, "filename", field.FileName, "content_type", field.ContentType,
				"bytes", field.Size, "status", code)
			return code, fields, errors.WithMessagef(err, "field %q, file %q", field.Name, field.FileName)
		}
		part.Close()
		left -= field.Size
		fields = append(fields, field)
	}

	return http.StatusOK, fields, nil
}

// receivePart consumes one part, of which at most 'left' bytes are accepted.
func (h *Handler) receivePart(ctx context.Context, part *multipart.Part, left int64) (Field, int, error) {
	field := Field{
		Name:        part.FormName(),
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
	}
	if field.Name == "" {
		return field, http.StatusBadRequest, errMissingFieldName
	}
	if field.ContentType == "" {
		field.ContentType = defaultPartContentType
	}

	limit := left
	if m := h.Config.MaxFilesize; field.FileName != "" && m > 0 && m < uint64(limit) {
		limit = int64(m)
	}
	declared := int64(-1)
	if s := part.Header.Get("Content-Length"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return field, http.StatusBadRequest, errors.Errorf("invalid Content-Length %q", s)
		}
		if n > limit {
			return field, http.StatusRequestEntityTooLarge, errors.Wrapf(errTooLarge, "part declares %d bytes", n)
		}
		declared = n
	}

	src := contextReader{ctx: ctx, r: part}
	log := logger.CoreFrom(ctx)

	if field.FileName == "" {
		n, err := copyAtMost(io.Discard, src, limit)
		field.Size = n
		if code, err := checkCopy(n, limit, declared, err); err != nil {
			return field, code, err
		}
		log.Debug("ignored a field without filename",
			"field", field.Name, "content_type", field.ContentType, "bytes", n)
		return field, http.StatusOK, nil
	}

	name, err := SanitizeFilename(field.FileName, h.Config.UnicodeForm)
	if err != nil {
		return field, http.StatusUnprocessableEntity, err
	}
	if h.Config.RestrictFilenamesTo != nil && !IsAcceptableFilename(name, h.Config.RestrictFilenamesTo, nil) {
		return field, http.StatusUnprocessableEntity, errors.Wrapf(errFilenameRejected, "%q", name)
	}

	savedAs, n, code, err := h.WriteFileFromReader(name, src, limit, declared)
	field.Size = n
	if err != nil {
		return field, code, err
	}
	field.SavedAs = savedAs
	log.Info("stored file",
		"field", field.Name, "filename", field.FileName, "content_type", field.ContentType,
		"bytes", n, "path", filepath.Join(h.dir.Path(), savedAs))
	return field, http.StatusOK, nil
}

// WriteFileFromReader is the unit of work implementing
// • creation of a proto file in the destination,
// • writing to it,
// • discarding it on failure ('zap') or
// • its emergence ('persist') into observable namespace under 'name',
// or "name (1).ext" and so forth if that is taken.
//
// At most 'limit' bytes are accepted. If 'declared' is not negative, exactly
// that many bytes must arrive, and disk space gets reserved for them beforehand.
//
// Returns the name the file has been saved as, the number of bytes read,
// and on failure an HTTP status code that classifies the error.
func (h *Handler) WriteFileFromReader(name string, r io.Reader, limit, declared int64) (string, int64, int, error) {
	f, err := h.intentNew()
	if err != nil {
		code, err := classify(err)
		return "", 0, code, err
	}
	defer f.Zap()

	if declared > 0 {
		if err := f.SizeWillBe(uint64(declared)); err != nil {
			code, err := classify(err)
			return "", 0, code, errors.Wrap(err, "reserve space")
		}
	}

	n, err := copyAtMost(f, r, limit)
	if code, err := checkCopy(n, limit, declared, err); err != nil {
		return "", n, code, err
	}

	for i := 0; i <= h.Config.MaxNameCollisions; i++ {
		candidate := nthName(name, i)
		err = f.Persist(candidate)
		if err == nil {
			return candidate, n, http.StatusOK, nil
		}
		if !errors.Is(err, os.ErrExist) {
			code, err := classify(err)
			return "", n, code, errors.Wrapf(err, "persist %s", candidate)
		}
	}
	return "", n, http.StatusConflict,
		errors.Wrapf(errNameCollisions, "%q and %d alternatives", name, h.Config.MaxNameCollisions)
}

// intentNew creates a proto file in the destination, which is created if it is absent.
func (h *Handler) intentNew() (protofile.ProtoFileBehaver, error) {
	if err := h.dir.Ensure(); err != nil {
		return nil, err
	}
	f, err := protofile.IntentNew(h.dir.Path())
	if errors.Is(err, os.ErrNotExist) { // removed after Ensure had cached its existence
		h.dir.forget()
		if err := h.dir.Ensure(); err != nil {
			return nil, err
		}
		f, err = protofile.IntentNew(h.dir.Path())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "new file in %s", h.dir.Path())
	}
	return f, nil
}

// checkCopy judges the outcome of copyAtMost.
func checkCopy(n, limit, declared int64, err error) (int, error) {
	switch {
	case err != nil:
		return classify(err)
	case n > limit:
		return http.StatusRequestEntityTooLarge, errors.Wrapf(errTooLarge, "more than %d bytes", limit)
	case declared >= 0 && n != declared:
		return http.StatusBadRequest, errors.Wrapf(errLengthMismatch, "got %d of %d bytes", n, declared)
	}
	return http.StatusOK, nil
}

// classify maps an error to the HTTP status code it will be reported with.
func classify(err error) (int, error) {
	var tooLarge *http.MaxBytesError
	var received readError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errors.Wrapf(errTooLarge, "more than %d bytes", tooLarge.Limit)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNRESET):
		return http.StatusBadRequest, clientGoneError{err}
	case errors.As(err, &received):
		return http.StatusBadRequest, errors.Wrap(err, "malformed multipart body")
	case errors.Is(err, syscall.ENOSPC):
		return http.StatusInsufficientStorage, err
	}
	return http.StatusInternalServerError, err
}

func (h *Handler) report(r *http.Request, res Result) {
	var total int64
	for _, f := range res.Fields {
		total += f.Size
	}
	log := logger.CoreFrom(r.Context()).With(
		"status", res.Status, "fields", len(res.Fields), "bytes", total,
		"duration", res.Duration, "remote", r.RemoteAddr)

	switch {
	case res.Aborted():
		log.Info("upload aborted by the client", "error", res.Err)
	case res.Status >= 500:
		log.Error("upload failed", "error", res.Err)
	case res.Status >= 400:
		log.Warn("upload rejected", "error", res.Err)
	default:
		log.Info("upload complete")
	}
}

// respond writes the response: a JSON summary on success, else a short message.
// Details of server-side failures stay in the log.
func (h *Handler) respond(w http.ResponseWriter, res Result) {
	if !res.Succeeded() {
		msg := http.StatusText(res.Status)
		if res.Status < 500 && res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		http.Error(w, msg, res.Status)
		return
	}

	fields := res.Fields
	if fields == nil {
		fields = []Field{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(res.Status)
	_ = json.NewEncoder(w).Encode(struct {
		Fields []Field `json:"fields"`
	}{fields})
}
