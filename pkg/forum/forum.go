// Package forum holds the in-memory imageboard data model: threads and
// posts, creation and validation, hiding and deletion, and the sample
// data used to seed a fresh instance for demos.
package forum

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressboard/pressboard/pkg/config"
)

// deletedUploadsSubdir is where DeletePostOrThread and CreateThread's
// tail-eviction relocate a removed thread's post files, instead of
// deleting them outright.
const deletedUploadsSubdir = "deleted"

// Sentinel errors returned by the forum's operations.
var (
	ErrThreadNotFound   = errors.New("forum: thread not found")
	ErrPostNotFound     = errors.New("forum: post not found")
	ErrMissingComment   = errors.New("forum: missing comment")
	ErrCommentTooLarge  = errors.New("forum: comment too large")
	ErrMissingFilename  = errors.New("forum: missing filename for opening post")
	ErrMissingSubject   = errors.New("forum: missing subject for opening post")
)

const anonymousName = "Anonymous"

// PostDraft is the caller-supplied half of a post: everything the HTTP
// layer extracts from the request before the forum assigns an id and a
// timestamp.
type PostDraft struct {
	Name     string
	Comment  string
	Filename string
}

// Post is a single reply (or opening post) within a thread.
type Post struct {
	PostID    int64
	ThreadID  int64
	Name      string
	Timestamp string
	Filename  string
	Comment   string
	Hidden    bool
}

// Thread is an ordered sequence of posts, opening post first.
type Thread struct {
	ThreadID int64
	Subject  string
	Posts    []Post
	NoBump   bool
}

// Forum is the full in-memory store. The zero value is not usable; call
// New to construct one. All methods are safe for concurrent use.
type Forum struct {
	mu         sync.RWMutex
	threads    []Thread
	nextPostID int64
	uploadsDir string
}

// New returns an empty Forum with the post id sequence seeded the way
// the reference implementation does. uploadsDir is where post files
// live; deleted and evicted threads have their files moved to
// uploadsDir/deleted rather than removed. An empty uploadsDir disables
// the move (used by tests that never write real upload files).
func New(uploadsDir string) *Forum {
	return &Forum{nextPostID: config.SeedThreadID, uploadsDir: uploadsDir}
}

func (f *Forum) nextID() int64 {
	id := f.nextPostID
	f.nextPostID++
	return id
}

func timestampNow() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func validatePost(draft PostDraft, postIsOp bool, subject string) error {
	if draft.Comment == "" {
		return ErrMissingComment
	}
	if postIsOp && draft.Filename == "" {
		return ErrMissingFilename
	}
	if postIsOp && subject == "" {
		return ErrMissingSubject
	}
	if len(draft.Comment)+1 > config.PostCommentMaxLen {
		return ErrCommentTooLarge
	}
	return nil
}

// GetThreads returns the thread list in display order (index 0 is the
// most recently created thread still present). The returned slice is a
// copy; mutating it does not affect the Forum.
func (f *Forum) GetThreads() []Thread {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Thread, len(f.threads))
	copy(out, f.threads)
	return out
}

// GetPostsByThreadID returns every post in the named thread, opening
// post first.
func (f *Forum) GetPostsByThreadID(threadID int64) ([]Post, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	t := f.findThread(threadID)
	if t == nil {
		return nil, ErrThreadNotFound
	}
	out := make([]Post, len(t.Posts))
	copy(out, t.Posts)
	return out, nil
}

func (f *Forum) findThread(threadID int64) *Thread {
	for i := range f.threads {
		if f.threads[i].ThreadID == threadID {
			return &f.threads[i]
		}
	}
	return nil
}

func (f *Forum) findPost(postID int64) *Post {
	for i := range f.threads {
		posts := f.threads[i].Posts
		for j := range posts {
			if posts[j].PostID == postID {
				return &posts[j]
			}
		}
	}
	return nil
}

// CreatePost appends a reply to an existing thread and returns its
// assigned post id. The thread's opening post is created by CreateThread,
// not this method.
func (f *Forum) CreatePost(threadID int64, draft PostDraft) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.findThread(threadID)
	if t == nil {
		return 0, ErrThreadNotFound
	}

	postIsOp := len(t.Posts) == 0
	if !postIsOp {
		if err := validatePost(draft, false, ""); err != nil {
			return 0, err
		}
	}

	post := buildPost(f, t, draft, postIsOp)
	t.Posts = append(t.Posts, post)

	if len(t.Posts) > config.ThreadBumpLimit {
		t.NoBump = true
	}

	return post.PostID, nil
}

func buildPost(f *Forum, t *Thread, draft PostDraft, postIsOp bool) Post {
	var postID int64
	if postIsOp {
		postID = t.ThreadID
	} else {
		postID = f.nextID()
	}

	name := draft.Name
	if name == "" {
		name = anonymousName
	}

	return Post{
		PostID:    postID,
		ThreadID:  t.ThreadID,
		Name:      name,
		Timestamp: timestampNow(),
		Filename:  draft.Filename,
		Comment:   draft.Comment,
	}
}

// CreateThread starts a new thread with the given subject and opening
// post, inserts it at the front of the thread list, and evicts the
// oldest thread once the thread cap is exceeded.
func (f *Forum) CreateThread(subject string, draft PostDraft) (int64, error) {
	if err := validatePost(draft, true, subject); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID()
	t := Thread{ThreadID: id, Subject: subject}
	post := buildPost(f, &t, draft, true)
	t.Posts = append(t.Posts, post)

	f.threads = append([]Thread{t}, f.threads...)

	if len(f.threads) > config.MaxThreads {
		evicted := f.threads[len(f.threads)-1]
		f.threads = f.threads[:len(f.threads)-1]
		f.moveThreadFiles(evicted)
	}

	return id, nil
}

// DeletePostOrThread removes the whole thread if id names a thread, or
// hides the single post if id names a reply within a thread.
func (f *Forum) DeletePostOrThread(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.threads {
		if f.threads[i].ThreadID == id {
			deleted := f.threads[i]
			f.threads = append(f.threads[:i], f.threads[i+1:]...)
			f.moveThreadFiles(deleted)
			return nil
		}
	}

	post := f.findPost(id)
	if post == nil {
		return ErrPostNotFound
	}
	post.Hidden = true
	return nil
}

// moveThreadFiles relocates every post file belonging to t from
// uploadsDir to uploadsDir/deleted by rename, the way the reference
// implementation moves rather than removes a deleted thread's files.
// Posts with no attached file (replies without an upload) are skipped.
// Errors are not fatal to the delete: a file that can't be moved (for
// instance, already gone) is logged nowhere here and simply left, since
// Forum has no logger of its own.
func (f *Forum) moveThreadFiles(t Thread) {
	if f.uploadsDir == "" {
		return
	}

	deletedDir := filepath.Join(f.uploadsDir, deletedUploadsSubdir)
	if err := os.MkdirAll(deletedDir, 0o755); err != nil {
		return
	}

	for _, p := range t.Posts {
		if p.Filename == "" {
			continue
		}
		src := filepath.Join(f.uploadsDir, p.Filename)
		dst := filepath.Join(deletedDir, p.Filename)
		os.Rename(src, dst)
	}
}

// Stats summarizes the forum's current size for periodic logging.
type Stats struct {
	ThreadCount  int
	PostCount    int
	HiddenCount  int
	CommentBytes int64
}

// Stats computes a snapshot under a read lock.
func (f *Forum) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var s Stats
	s.ThreadCount = len(f.threads)
	for _, t := range f.threads {
		s.PostCount += len(t.Posts)
		for _, p := range t.Posts {
			if p.Hidden {
				s.HiddenCount++
			}
			s.CommentBytes += int64(len(p.Comment))
		}
	}
	return s
}
