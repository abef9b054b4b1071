// Package history keeps every saved version of a note in a per-item git
// repository, one file per note.
package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"rabbithole/api/internal/model"
	"rabbithole/api/internal/util"
)

var ErrInvalidID = errors.New("history: invalid id")

type Revision = model.Revision

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*itemLock
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*itemLock),
		now:     time.Now,
	}
}

// Record commits content as the current version of the note. changed is
// false when the content matches the last recorded version.
func (s *Service) Record(itemID, noteID, content, author string) (rev Revision, changed bool, err error) {
	if !util.IsUUID(itemID) || !util.IsUUID(noteID) {
		return Revision{}, false, ErrInvalidID
	}
	defer s.lockItem(itemID)()

	repo, err := s.openOrInit(itemID)
	if err != nil {
		return Revision{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, false, fmt.Errorf("open worktree: %w", err)
	}

	rel := notePath(noteID)
	abs := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Revision{}, false, fmt.Errorf("create notes dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return Revision{}, false, fmt.Errorf("write note: %w", err)
	}
	if _, err := worktree.Add(rel); err != nil {
		return Revision{}, false, fmt.Errorf("git add note: %w", err)
	}

	hash, err := worktree.Commit("Update note "+noteID, &git.CommitOptions{Author: s.signature(author)})
	if errors.Is(err, git.ErrEmptyCommit) {
		return Revision{}, false, nil
	}
	if err != nil {
		return Revision{}, false, fmt.Errorf("commit note: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, false, fmt.Errorf("read commit object: %w", err)
	}
	rev = toRevision(commitObj)
	rev.Content = content
	return rev, true, nil
}

// Remove records the deletion of a note. A note that was never recorded is
// a no-op.
func (s *Service) Remove(itemID, noteID, author string) error {
	if !util.IsUUID(itemID) || !util.IsUUID(noteID) {
		return ErrInvalidID
	}
	defer s.lockItem(itemID)()

	repo, err := git.PlainOpen(s.repoPath(itemID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	rel := notePath(noteID)
	if _, err := os.Stat(filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rel))); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if _, err := worktree.Remove(rel); err != nil {
		return fmt.Errorf("git rm note: %w", err)
	}
	_, err = worktree.Commit("Delete note "+noteID, &git.CommitOptions{Author: s.signature(author)})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return fmt.Errorf("commit note removal: %w", err)
	}
	return nil
}

// DropItem deletes the item's repository.
func (s *Service) DropItem(itemID string) error {
	if !util.IsUUID(itemID) {
		return ErrInvalidID
	}
	defer s.lockItem(itemID)()
	if err := os.RemoveAll(s.repoPath(itemID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

// List returns the note's versions newest first. limit <= 0 returns all.
func (s *Service) List(itemID, noteID string, limit int) ([]Revision, error) {
	if !util.IsUUID(itemID) || !util.IsUUID(noteID) {
		return nil, ErrInvalidID
	}
	defer s.lockItem(itemID)()

	revisions := make([]Revision, 0)
	repo, err := git.PlainOpen(s.repoPath(itemID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return revisions, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if _, err := repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		return revisions, nil
	}

	rel := notePath(noteID)
	iter, err := repo.Log(&git.LogOptions{FileName: &rel})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		rev := toRevision(commitObj)
		file, err := commitObj.File(rel)
		switch {
		case errors.Is(err, object.ErrFileNotFound):
			rev.Deleted = true
		case err != nil:
			return fmt.Errorf("load note from commit: %w", err)
		default:
			contents, err := file.Contents()
			if err != nil {
				return fmt.Errorf("read note contents: %w", err)
			}
			rev.Content = contents
		}
		revisions = append(revisions, rev)
		if limit > 0 && len(revisions) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return revisions, nil
}

func (s *Service) openOrInit(itemID string) (*git.Repository, error) {
	repoPath := s.repoPath(itemID)
	repo, err := git.PlainOpen(repoPath)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(repoPath, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(itemID string) string {
	return filepath.Join(s.baseDir, itemID)
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

// lockItem serialises work on one item's repository and returns the
// unlock func. Entries are dropped once no caller holds or waits on them.
func (s *Service) lockItem(itemID string) func() {
	s.lockMu.Lock()
	lock, ok := s.locks[itemID]
	if !ok {
		lock = &itemLock{}
		s.locks[itemID] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, itemID)
		}
		s.lockMu.Unlock()
	}
}

func (s *Service) signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.rabbithole.dev", sanitizeEmail(author)),
		When:  s.now(),
	}
}

func notePath(noteID string) string {
	return path.Join("notes", noteID+".txt")
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:    commitObj.Hash.String()[:7],
		Message: commitObj.Message,
		Author:  commitObj.Author.Name,
		At:      commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
