// Package routing implements pressboard's declarative route table: the
// six fixed routes, their query-parameter and form-field bindings,
// upload content-type sniffing, and the handlers that turn a parsed
// request into a response.
package routing

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pressboard/pressboard/pkg/config"
	"github.com/pressboard/pressboard/pkg/forum"
	"github.com/pressboard/pressboard/pkg/logging"
	"github.com/pressboard/pressboard/pkg/logsafe"
	"github.com/pressboard/pressboard/pkg/resources"
	"github.com/pressboard/pressboard/pkg/templating"
	"github.com/pressboard/pressboard/pkg/wire"
)

// ErrInvalidRequest is returned by request validation and causes the
// caller to serve a 400 response.
var ErrInvalidRequest = errors.New("routing: invalid request")

// ErrNotFound causes the caller to serve a 404 response.
var ErrNotFound = errors.New("routing: not found")

// route describes one entry in the fixed route table.
type route struct {
	method      wire.Method
	path        string
	wildcard    bool
	params      []ParamSpec
	formFields  []wire.FieldSpec
	maxBodySize int64
	handle      func(rt *Router, rest string, params map[string]ParamValue, fields map[string]wire.Field, headersOnly bool) (templating.Response, error)
}

var paramsReport = []ParamSpec{{Key: "post_id", Kind: ParamInteger}}

var formFieldsPost = []wire.FieldSpec{
	{Name: "thread_id", Optional: true},
	{Name: "name", Optional: true},
	{Name: "subject", Optional: true},
	{Name: "comment"},
	{Name: "file", Optional: true, AcceptedContentTypes: wire.UploadContentTypePNG | wire.UploadContentTypeJPEG},
}

var routeTable = []route{
	{method: wire.MethodGET, path: "/catalog", handle: (*Router).handleCatalog},
	{method: wire.MethodGET, path: "/thread/", wildcard: true, handle: (*Router).handleThread},
	{method: wire.MethodGET, path: "/report", params: paramsReport, handle: (*Router).handleReport},
	{method: wire.MethodPOST, path: "/post", maxBodySize: config.MaxBodySize, formFields: formFieldsPost, handle: (*Router).handlePost},
	{method: wire.MethodGET, path: "/uploads/", wildcard: true, handle: (*Router).handleUploads},
	{method: wire.MethodGET, path: "/", handle: (*Router).handleCatalog},
}

// Router dispatches parsed requests to handlers against a shared forum,
// template engine, and error-page cache.
type Router struct {
	Forum      *forum.Forum
	Engine     *templating.Engine
	Cache      *resources.Cache
	HTMLDir    string
	UploadsDir string
	Log        logging.Logger
}

// ValidatePostRequest is the pre-body admission check the multiplexer
// runs as soon as headers are parsed, before it commits to reading a
// POST body: it confirms the route exists and that its declared
// Content-Length does not exceed the route's body size limit, so an
// oversized upload is rejected before the connection spends time reading
// it.
func (rt *Router) ValidatePostRequest(req wire.Request) error {
	if req.Method != wire.MethodPOST {
		return ErrInvalidRequest
	}
	for _, rte := range routeTable {
		if rte.method != req.Method {
			continue
		}
		if !pathMatches(rte, req.Path) {
			continue
		}
		if req.ContentLength > rte.maxBodySize {
			return ErrInvalidRequest
		}
		return nil
	}
	return ErrInvalidRequest
}

func pathMatches(rte route, reqPath string) bool {
	if rte.wildcard {
		return strings.HasPrefix(reqPath, rte.path)
	}
	return reqPath == rte.path
}

// Route dispatches a fully-read request (headers plus body, if any) to
// its handler and returns the response to send.
func (rt *Router) Route(req wire.Request, body []byte) (templating.Response, error) {
	for _, rte := range routeTable {
		headersOnly := false
		if req.Method != rte.method {
			if req.Method == wire.MethodHEAD && rte.method == wire.MethodGET {
				headersOnly = true
			} else {
				continue
			}
		}

		rest := ""
		if rte.wildcard {
			if !strings.HasPrefix(req.Path, rte.path) {
				continue
			}
			rest = req.Path[len(rte.path):]
		} else if req.Path != rte.path {
			continue
		}

		switch req.Method {
		case wire.MethodGET, wire.MethodHEAD:
			var params map[string]ParamValue
			if len(rte.params) > 0 {
				var err error
				params, err = parseParams(req.Params, rte.params)
				if err != nil {
					return templating.Response{}, ErrInvalidRequest
				}
			}
			return rte.handle(rt, rest, params, nil, headersOnly)

		case wire.MethodPOST:
			if len(rte.formFields) == 0 {
				return templating.Response{}, fmt.Errorf("routing: POST route %s has no form fields", rte.path)
			}
			if int64(len(body)) != req.ContentLength {
				return templating.Response{}, fmt.Errorf("routing: body length mismatch")
			}
			if req.Boundary == "" {
				return templating.Response{}, fmt.Errorf("routing: missing multipart boundary")
			}
			fields, err := wire.ParseMultipartFormData(body, req.Boundary, rte.formFields)
			if err != nil {
				return templating.Response{}, ErrInvalidRequest
			}
			return rte.handle(rt, rest, nil, fields, false)
		}
	}
	return templating.Response{}, ErrNotFound
}

func (rt *Router) handleCatalog(_ string, _ map[string]ParamValue, _ map[string]wire.Field, headersOnly bool) (templating.Response, error) {
	threads := rt.Forum.GetThreads()
	page, err := rt.Engine.RenderCatalog(threads)
	if err != nil {
		return templating.Response{}, err
	}
	return templating.HTML(templating.Owned(page), headersOnly), nil
}

func (rt *Router) handleThread(rest string, _ map[string]ParamValue, _ map[string]wire.Field, headersOnly bool) (templating.Response, error) {
	if rest == "" {
		return templating.Response{}, ErrNotFound
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return templating.Response{}, ErrNotFound
		}
	}
	threadID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return templating.Response{}, ErrNotFound
	}

	posts, err := rt.Forum.GetPostsByThreadID(threadID)
	if err != nil {
		return templating.Response{}, ErrNotFound
	}

	page, err := rt.Engine.RenderThread(threadID, posts)
	if err != nil {
		return templating.Response{}, err
	}
	return templating.HTML(templating.Owned(page), headersOnly), nil
}

func (rt *Router) handleReport(_ string, params map[string]ParamValue, _ map[string]wire.Field, _ bool) (templating.Response, error) {
	postID, ok := params["post_id"]
	if !ok || !postID.Present {
		return templating.Response{}, fmt.Errorf("routing: missing post_id")
	}

	if err := rt.Forum.DeletePostOrThread(postID.Integer); err != nil && !errors.Is(err, forum.ErrPostNotFound) {
		rt.Log.WithError(err).Warn("report: delete failed")
	} else {
		rt.Log.WithField("post_id", postID.Integer).Info("report: post hidden or thread deleted")
	}

	return templating.Redirect("/"), nil
}

func (rt *Router) handlePost(_ string, _ map[string]ParamValue, fields map[string]wire.Field, _ bool) (templating.Response, error) {
	var threadID int64 = -1
	var subject, name string
	var comment string
	var uploadedFilename string
	var uploadedData []byte

	if f, ok := fields["thread_id"]; ok && f.Present {
		n, err := strconv.ParseInt(strings.TrimSpace(string(f.Value)), 10, 64)
		if err != nil {
			return templating.Response{}, ErrInvalidRequest
		}
		threadID = n
	}
	if f, ok := fields["subject"]; ok && f.Present {
		if len(f.Value)+1 > config.ThreadSubjectMaxLen {
			return templating.Response{}, ErrInvalidRequest
		}
		subject = sanitize(string(f.Value), 0)
	}
	if f, ok := fields["name"]; ok && f.Present {
		if len(f.Value)+1 > config.PostNameMaxLen {
			return templating.Response{}, ErrInvalidRequest
		}
		name = sanitize(string(f.Value), 0)
	}
	if f, ok := fields["comment"]; ok && f.Present {
		if len(f.Value)+1 > config.PostCommentMaxLen {
			return templating.Response{}, ErrInvalidRequest
		}
		comment = sanitize(string(f.Value), 2)
	}
	if f, ok := fields["file"]; ok && f.Present {
		uct := sniffUpload(f.Value, f.ContentType, config.MaxUploadSize)
		if uct == wire.UploadContentTypeNone {
			return templating.Response{}, ErrInvalidRequest
		}
		uploadedFilename = genFilename(uploadExtension(uct))
		uploadedData = f.Value
	}

	draft := forum.PostDraft{Name: name, Comment: comment, Filename: uploadedFilename}

	var postID int64
	var err error
	if threadID == -1 {
		postID, err = rt.Forum.CreateThread(subject, draft)
	} else {
		postID, err = rt.Forum.CreatePost(threadID, draft)
	}
	if err != nil {
		return templating.Response{}, ErrInvalidRequest
	}

	rt.Log.WithFields(map[string]interface{}{
		"post_id": postID,
		"name":    logsafe.String(name),
		"subject": logsafe.String(subject),
		"comment": logsafe.String(comment),
	}).Info("post created")

	if uploadedData != nil {
		if err := saveUpload(rt.UploadsDir, uploadedFilename, uploadedData); err != nil {
			return templating.Response{}, err
		}
	}

	var location string
	if threadID == -1 {
		location = fmt.Sprintf("/thread/%d", postID)
	} else {
		location = fmt.Sprintf("/thread/%d#%d", threadID, postID)
	}
	return templating.Redirect(location), nil
}

func (rt *Router) handleUploads(rest string, _ map[string]ParamValue, _ map[string]wire.Field, headersOnly bool) (templating.Response, error) {
	filename := rest
	if len(filename) < 5 || len(filename) > 30 {
		return templating.Response{}, ErrNotFound
	}
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		isAlnum := c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
		if !isAlnum && c != '.' {
			return templating.Response{}, ErrNotFound
		}
	}

	var mimeType string
	switch {
	case strings.HasSuffix(filename, ".png"):
		mimeType = "image/png"
	case strings.HasSuffix(filename, ".jpg"):
		mimeType = "image/jpeg"
	default:
		return templating.Response{}, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(rt.UploadsDir, filename))
	if err != nil {
		return templating.Response{}, ErrNotFound
	}

	return templating.File(templating.Owned(data), mimeType, headersOnly), nil
}

// ErrorPage builds an error response (400, 404, or 500) serving its
// cached static page.
func (rt *Router) ErrorPage(code int) templating.Response {
	name := map[int]string{400: "400.html", 404: "404.html", 500: "500.html"}[code]
	data := rt.Cache.Get(filepath.Join(rt.HTMLDir, name))
	return templating.Error(code, templating.Inline(data))
}

const filenameHashLen = 20

// genFilename produces a random 20-character alphabetic filename plus
// ext, the same ad-hoc naming scheme the reference implementation uses
// ("doesn't check for collisions because who cares").
func genFilename(ext string) string {
	var b strings.Builder
	b.Grow(filenameHashLen + len(ext))
	for i := 0; i < filenameHashLen; i++ {
		b.WriteByte('A' + byte(rand.Intn('Z'-'A'+1)))
	}
	b.WriteString(ext)
	return b.String()
}

func saveUpload(dir, filename string, data []byte) error {
	return os.WriteFile(filepath.Join(dir, filename), data, 0o644)
}
