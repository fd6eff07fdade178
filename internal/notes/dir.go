package notes

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/spf13/afero"
)

// DirRepository reads plain-text notes from a directory tree.
//
// A note's ID is its path relative to the root without extension. The title is the
// first "# " heading line, falling back to the file name. A "tags:" line before the
// body holds comma-separated tags. Everything else is the body.
type DirRepository struct {
	fs      afero.Fs
	root    string
	include []string
}

// NewDirRepository creates a repository over root on fsys. include holds doublestar
// patterns relative to root; empty means every file.
func NewDirRepository(fsys afero.Fs, root string, include []string) *DirRepository {
	return &DirRepository{fs: fsys, root: filepath.Clean(root), include: include}
}

// NewOsDirRepository creates a repository on the operating system filesystem.
func NewOsDirRepository(root string, include []string) *DirRepository {
	return NewDirRepository(afero.NewOsFs(), root, include)
}

// Root returns the notes directory.
func (r *DirRepository) Root() string {
	return r.root
}

// List walks the root and parses every included file. A missing root yields no notes.
func (r *DirRepository) List(ctx context.Context) ([]*models.Note, error) {
	exists, err := afero.DirExists(r.fs, r.root)
	if err != nil {
		return nil, fmt.Errorf("check notes directory: %w", err)
	}
	if !exists {
		return []*models.Note{}, nil
	}

	notes := []*models.Note{}
	seen := make(map[string]string)
	err = afero.Walk(r.fs, r.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if p != r.root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, ok := fileid.Rel(r.root, p)
		if !ok || !fileid.Matches(rel, r.include) {
			return nil
		}
		id, _ := fileid.NoteID(r.root, p)
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("files %s and %s map to the same note id %s", prev, rel, id)
		}
		seen[id] = rel

		n, err := r.load(p, id, info)
		if err != nil {
			return err
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk notes directory: %w", err)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

// Get finds the included file whose ID is id.
func (r *DirRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, seg := range strings.Split(path.Dir(id), "/") {
		if seg == ".." || (seg != "." && strings.HasPrefix(seg, ".")) {
			return nil, failure.Newf(failure.NotFound, "get note", "note %s not found", id)
		}
	}
	dir := filepath.Join(r.root, filepath.FromSlash(path.Dir(id)))
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read notes directory: %w", err)
	}
	for _, info := range entries {
		if info.IsDir() {
			continue
		}
		p := filepath.Join(dir, info.Name())
		rel, ok := fileid.Rel(r.root, p)
		if !ok || !fileid.Matches(rel, r.include) {
			continue
		}
		if got, _ := fileid.NoteID(r.root, p); got == id {
			return r.load(p, id, info)
		}
	}
	return nil, failure.Newf(failure.NotFound, "get note", "note %s not found", id)
}

func (r *DirRepository) load(p, id string, info fs.FileInfo) (*models.Note, error) {
	data, err := afero.ReadFile(r.fs, p)
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", id, err)
	}
	n := Parse(string(data))
	n.ID = id
	if n.Title == "" {
		n.Title = path.Base(id)
	}
	n.ModifiedAt = info.ModTime().UTC()
	return n, nil
}

// Parse splits plain-text content into title, tags, and body. ID and ModifiedAt are
// left for the caller.
func Parse(content string) *models.Note {
	n := &models.Note{Tags: []string{}}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	body := make([]string, 0, len(lines))
	header := true
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if header {
			switch {
			case trimmed == "":
				continue
			case n.Title == "" && strings.HasPrefix(trimmed, "# "):
				n.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
				continue
			case len(n.Tags) == 0 && strings.HasPrefix(strings.ToLower(trimmed), "tags:"):
				n.Tags = parseTags(trimmed[len("tags:"):])
				continue
			}
			header = false
		}
		body = append(body, line)
	}
	n.Body = strings.TrimSpace(strings.Join(body, "\n"))
	return n
}

func parseTags(s string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
