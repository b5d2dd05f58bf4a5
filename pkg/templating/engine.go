// Package templating implements pressboard's small directive language —
// {{ include FILE }} and {{ fun NAME }} lines inside an HTML template —
// and the fixed-shape HTTP/1.0 response value (status line, headers,
// body) that the multiplexer writes out.
package templating

import (
	"bytes"
	"fmt"
	"path"

	"github.com/pressboard/pressboard/pkg/forum"
	"github.com/pressboard/pressboard/pkg/resources"
)

const partsSubdir = "parts"

// Engine renders template files out of a shared resource cache,
// dispatching {{ fun NAME }} directives to named callouts. cache is
// expected to be keyed the same way the rest of pressboard keys it: by
// path relative to the process's working directory, so templates/,
// parts/, and html/ entries all share one cache instance.
type Engine struct {
	cache       *resources.Cache
	templateDir string
}

// New returns an Engine that resolves template files under templateDir
// (e.g. "templates") and included parts under templateDir/parts.
func New(cache *resources.Cache, templateDir string) *Engine {
	return &Engine{cache: cache, templateDir: templateDir}
}

func (e *Engine) templatePath(filename string) string {
	return path.Join(e.templateDir, filename)
}

func (e *Engine) partPath(filename string) string {
	return path.Join(e.templateDir, partsSubdir, filename)
}

// render walks filename line by line, copying ordinary lines verbatim
// and dispatching directive lines, until the file is exhausted.
func (e *Engine) render(filename string, dispatch func(buf *bytes.Buffer, arg string) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.renderInto(&buf, filename, dispatch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) renderInto(buf *bytes.Buffer, filename string, dispatch func(buf *bytes.Buffer, arg string) error) error {
	src := e.cache.Get(e.templatePath(filename))

	for _, line := range splitLines(src) {
		if !bytes.HasPrefix(line, []byte("{{")) {
			buf.Write(line)
			buf.WriteByte('\n')
			continue
		}

		cmd, arg, err := parseDirectiveLine(line)
		if err != nil {
			return err
		}

		switch cmd {
		case "include":
			if err := e.include(buf, arg); err != nil {
				return err
			}
		case "fun":
			if err := dispatch(buf, arg); err != nil {
				return err
			}
		default:
			return fmt.Errorf("templating: invalid directive command %q", cmd)
		}
	}

	return nil
}

func (e *Engine) include(buf *bytes.Buffer, filename string) error {
	data := e.cache.Get(e.partPath(filename))
	buf.Write(data)
	buf.WriteByte('\n')
	return nil
}

// splitLines splits src on '\n', dropping a trailing '\r' from each line
// and discarding a final empty trailing element (a file ending in '\n').
func splitLines(src []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			line := src[start:i]
			line = bytes.TrimSuffix(line, []byte("\r"))
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(src) {
		lines = append(lines, bytes.TrimSuffix(src[start:], []byte("\r")))
	}
	return lines
}

// parseDirectiveLine parses a "{{ cmd arg }}" line into its command and
// argument.
func parseDirectiveLine(line []byte) (cmd, arg string, err error) {
	s := string(line)
	if len(s) < 10 || s[len(s)-2:] != "}}" {
		return "", "", fmt.Errorf("templating: malformed directive line %q", s)
	}
	inner := s[3 : len(s)-3] // drop leading "{{ " and trailing " }}"
	spaceIdx := indexByte(inner, ' ')
	if spaceIdx < 0 {
		return inner, "", nil
	}
	return inner[:spaceIdx], inner[spaceIdx+1:], nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// RenderCatalog renders the catalog page listing every active thread,
// or the "no threads active" placeholder when there are none.
func (e *Engine) RenderCatalog(threads []forum.Thread) ([]byte, error) {
	return e.render("catalog.html", func(buf *bytes.Buffer, arg string) error {
		switch arg {
		case "posts_in_catalog":
			if len(threads) == 0 {
				return e.include(buf, "no_threads_active.html")
			}
			return e.writePostsInCatalog(buf, threads)
		default:
			return fmt.Errorf("templating: invalid catalog directive argument %q", arg)
		}
	})
}

// RenderThread renders a single thread page: its title, new-post form,
// and every non-hidden post.
func (e *Engine) RenderThread(threadID int64, posts []forum.Post) ([]byte, error) {
	title := fmt.Sprintf("Thread no. %d", threadID)

	return e.render("thread.html", func(buf *bytes.Buffer, arg string) error {
		switch arg {
		case "title":
			fmt.Fprintf(buf, "<title>%s</title>\n", title)
			return nil
		case "new_post_form":
			return e.writeNewPostForm(buf, threadID)
		case "posts_in_thread":
			return e.writePostsInThread(buf, posts)
		default:
			return fmt.Errorf("templating: invalid thread directive argument %q", arg)
		}
	})
}

func (e *Engine) writeNewPostForm(buf *bytes.Buffer, threadID int64) error {
	format := string(e.cache.Get(e.partPath("new_post_form.html")))
	fmt.Fprintf(buf, format, threadID)
	return nil
}

func (e *Engine) writePostsInThread(buf *bytes.Buffer, posts []forum.Post) error {
	formatImg := string(e.cache.Get(e.partPath("post_in_thread_img.html")))
	formatNoImg := string(e.cache.Get(e.partPath("post_in_thread_noimg.html")))

	for _, p := range posts {
		if p.Hidden {
			continue
		}
		if p.Filename != "" {
			fmt.Fprintf(buf, formatImg,
				p.PostID, p.Name, p.Timestamp, p.PostID, p.PostID, p.PostID, p.Filename, p.Filename, p.Comment)
		} else {
			fmt.Fprintf(buf, formatNoImg,
				p.PostID, p.Name, p.Timestamp, p.PostID, p.PostID, p.PostID, p.Comment)
		}
		buf.WriteByte('\n')
	}
	return nil
}

func (e *Engine) writePostsInCatalog(buf *bytes.Buffer, threads []forum.Thread) error {
	format := string(e.cache.Get(e.partPath("post_in_catalog.html")))

	for _, t := range threads {
		op := t.Posts[0]
		fmt.Fprintf(buf, format,
			t.Subject, op.Name, op.Timestamp, op.PostID, op.PostID, op.Filename, op.Filename, op.Comment, op.PostID)
		buf.WriteByte('\n')
	}
	return nil
}
