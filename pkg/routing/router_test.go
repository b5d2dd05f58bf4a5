package routing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pressboard/pressboard/pkg/forum"
	"github.com/pressboard/pressboard/pkg/resources"
	"github.com/pressboard/pressboard/pkg/templating"
	"github.com/pressboard/pressboard/pkg/wire"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	root := t.TempDir()
	templateDir := filepath.Join(root, "templates")
	htmlDir := filepath.Join(root, "html")
	uploadsDir := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(uploadsDir, 0o755))

	writeFile(t, filepath.Join(templateDir, "catalog.html"), "<html>\n{{ fun posts_in_catalog }}\n</html>")
	writeFile(t, filepath.Join(templateDir, "thread.html"), "<html>\n{{ fun title }}\n{{ fun new_post_form }}\n{{ fun posts_in_thread }}\n</html>")
	writeFile(t, filepath.Join(templateDir, "parts", "no_threads_active.html"), "nothing yet")
	writeFile(t, filepath.Join(templateDir, "parts", "new_post_form.html"), "<form action=\"/post\"><input name=\"thread_id\" value=\"%d\"></form>")
	writeFile(t, filepath.Join(templateDir, "parts", "post_in_thread_img.html"), "post %d %s %s %d %d %d %s %s %s")
	writeFile(t, filepath.Join(templateDir, "parts", "post_in_thread_noimg.html"), "post %d %s %s %d %d %d %s")
	writeFile(t, filepath.Join(templateDir, "parts", "post_in_catalog.html"), "thread %s %s %s %d %d %s %s %s %d")
	writeFile(t, filepath.Join(htmlDir, "400.html"), "bad request")
	writeFile(t, filepath.Join(htmlDir, "404.html"), "not found")
	writeFile(t, filepath.Join(htmlDir, "500.html"), "server error")

	cache := resources.New(root)
	engine := templating.New(cache, "templates")

	log := logrus.New()
	log.SetOutput(os.Stderr)

	return &Router{
		Forum:      forum.New(uploadsDir),
		Engine:     engine,
		Cache:      cache,
		HTMLDir:    "html",
		UploadsDir: uploadsDir,
		Log:        log,
	}
}

func TestRouteCatalogWithNoThreads(t *testing.T) {
	rt := newTestRouter(t)
	resp, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/catalog"}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(resp.Body.Data), "nothing yet")
}

func TestRouteRootAliasesCatalog(t *testing.T) {
	rt := newTestRouter(t)
	resp, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/"}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

// buildPostBody builds a multipart body delimited by boundary, which
// must already include its leading "--" the way wire.Request.Boundary
// does.
func buildPostBody(boundary string, fields map[string]string) []byte {
	var out []byte
	for name, val := range fields {
		out = append(out, fmt.Sprintf("%s\r\nContent-Disposition: form-data; name=\"%s\"\r\n\r\n%s\r\n", boundary, name, val)...)
	}
	out = append(out, fmt.Sprintf("%s--\r\n", boundary)...)
	return out
}

func TestRouteCreatesThreadThenServesIt(t *testing.T) {
	rt := newTestRouter(t)
	boundary := "------pressboardtest"
	body := buildPostBody(boundary, map[string]string{
		"subject": "my subject",
		"name":    "poster",
		"comment": "hello world",
	})

	// An opening post needs an image: prepend a 150-byte PNG file part.
	png := make([]byte, 150)
	copy(png, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	filePart := fmt.Sprintf("%s\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\n%s\r\n", boundary, png)
	body = append([]byte(filePart), body...)

	req := wire.Request{
		Method:        wire.MethodPOST,
		Path:          "/post",
		ContentType:   wire.ContentTypeMultipartFormData,
		ContentLength: int64(len(body)),
		Boundary:      boundary,
	}

	require.NoError(t, rt.ValidatePostRequest(req))

	resp, err := rt.Route(req, body)
	require.NoError(t, err)
	require.Equal(t, 303, resp.StatusCode)
	require.Contains(t, resp.Location, "/thread/")

	threads := rt.Forum.GetThreads()
	require.Len(t, threads, 1)

	threadResp, err := rt.Route(wire.Request{
		Method: wire.MethodGET,
		Path:   fmt.Sprintf("/thread/%d", threads[0].ThreadID),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, threadResp.StatusCode)
	require.Contains(t, string(threadResp.Body.Data), "hello world")
}

func TestRouteThreadNotFound(t *testing.T) {
	rt := newTestRouter(t)
	_, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/thread/999"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRouteThreadRejectsNonDigitID(t *testing.T) {
	rt := newTestRouter(t)
	_, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/thread/abc"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestValidatePostRequestRejectsOversizedContentLength(t *testing.T) {
	rt := newTestRouter(t)
	req := wire.Request{Method: wire.MethodPOST, Path: "/post", ContentLength: 1 << 30}
	require.ErrorIs(t, rt.ValidatePostRequest(req), ErrInvalidRequest)
}

func TestValidatePostRequestRejectsUnknownRoute(t *testing.T) {
	rt := newTestRouter(t)
	req := wire.Request{Method: wire.MethodPOST, Path: "/does-not-exist"}
	require.ErrorIs(t, rt.ValidatePostRequest(req), ErrInvalidRequest)
}

func TestRouteReportHidesPost(t *testing.T) {
	rt := newTestRouter(t)
	threadID, err := rt.Forum.CreateThread("subj", forum.PostDraft{Comment: "c", Filename: "f.png"})
	require.NoError(t, err)
	postID, err := rt.Forum.CreatePost(threadID, forum.PostDraft{Comment: "reply"})
	require.NoError(t, err)

	resp, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/report", Params: fmt.Sprintf("post_id=%d", postID)}, nil)
	require.NoError(t, err)
	require.Equal(t, 303, resp.StatusCode)

	posts, err := rt.Forum.GetPostsByThreadID(threadID)
	require.NoError(t, err)
	require.True(t, posts[1].Hidden)
}

func TestRouteUploadsRejectsBadFilename(t *testing.T) {
	rt := newTestRouter(t)
	_, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/uploads/../../etc/passwd"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRouteUploadsServesExistingFile(t *testing.T) {
	rt := newTestRouter(t)
	writeFile(t, filepath.Join(rt.UploadsDir, "AAAAAAAAAAAAAAAAAAAA.png"), "fake png bytes")

	resp, err := rt.Route(wire.Request{Method: wire.MethodGET, Path: "/uploads/AAAAAAAAAAAAAAAAAAAA.png"}, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "image/png", resp.MimeType)
}

func TestErrorPageServesCachedPage(t *testing.T) {
	rt := newTestRouter(t)
	resp := rt.ErrorPage(404)
	require.Equal(t, 404, resp.StatusCode)
	require.Contains(t, string(resp.Body.Data), "not found")
}
