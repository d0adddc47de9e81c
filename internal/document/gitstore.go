package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// GitStore implements Store by cloning a Git repository, reading
// (type,name) documents from <type>/<name>.yaml, and committing+pushing
// writes back to the tracked branch.
type GitStore struct {
	repoURL  string
	branch   string
	localDir string
	auth     transport.AuthMethod
	author   object.Signature

	mu   sync.Mutex
	repo *git.Repository
}

// NewGitStore creates a GitStore that clones repoURL/branch into baseDir
// on first use.
func NewGitStore(repoURL, branch, baseDir string) (*GitStore, error) {
	localDir := filepath.Join(baseDir, "document-repo")
	return &GitStore{
		repoURL:  repoURL,
		branch:   branch,
		localDir: localDir,
		auth:     gitAuth(repoURL),
		author:   object.Signature{Name: "stackl-core", Email: "stackl-core@localhost"},
	}, nil
}

func (g *GitStore) docPath(docType catalog.DocType, name string) string {
	return filepath.Join(g.localDir, string(docType), name+".yaml")
}

func (g *GitStore) instancePath(name string) string {
	return filepath.Join(g.localDir, "stack_instances", name+".yaml")
}

func (g *GitStore) Get(ctx context.Context, docType catalog.DocType, name string) (Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return Document{}, stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	path := g.docPath(docType, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, stackerrors.NotFound(string(docType), name)
		}
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Document{Type: docType, Name: name, Body: data}, nil
}

func (g *GitStore) Write(ctx context.Context, docType catalog.DocType, name string, body []byte, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	path := g.docPath(docType, name)
	relPath := filepath.Join(string(docType), name+".yaml")
	return g.writeAndCommit(ctx, path, relPath, body, description)
}

func (g *GitStore) List(ctx context.Context, docType catalog.DocType) ([]Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	dir := filepath.Join(g.localDir, string(docType))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".yaml")
		docs = append(docs, Document{Type: docType, Name: name, Body: data})
	}
	return docs, nil
}

func (g *GitStore) GetStackInstance(ctx context.Context, name string) (catalog.StackInstance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return catalog.StackInstance{}, stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	path := g.instancePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return catalog.StackInstance{}, stackerrors.NotFound(string(catalog.DocTypeStackInstance), name)
		}
		return catalog.StackInstance{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var inst catalog.StackInstance
	if err := decodeYAML(data, &inst); err != nil {
		return catalog.StackInstance{}, fmt.Errorf("decoding stack instance %q: %w", name, err)
	}
	return inst, nil
}

func (g *GitStore) ListStackInstances(ctx context.Context) ([]catalog.StackInstance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return nil, stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	dir := filepath.Join(g.localDir, "stack_instances")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var instances []catalog.StackInstance
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var inst catalog.StackInstance
		if err := decodeYAML(data, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

func (g *GitStore) WriteStackInstance(ctx context.Context, instance *catalog.StackInstance) error {
	existing, err := g.GetStackInstance(ctx, instance.Name)
	switch {
	case err == nil:
		if instance.Version != 0 && instance.Version != existing.Version {
			return stackerrors.Conflict(instance.Name)
		}
		instance.Version = existing.Version + 1
	case stackerrors.Is(err, stackerrors.KindNotFound):
		instance.Version = 1
	default:
		return err
	}

	data, err := encodeYAML(instance)
	if err != nil {
		return fmt.Errorf("encoding stack instance %q: %w", instance.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	path := g.instancePath(instance.Name)
	relPath := filepath.Join("stack_instances", instance.Name+".yaml")
	return g.writeAndCommit(ctx, path, relPath, data, "stack instance "+instance.Name)
}

func (g *GitStore) DeleteStackInstance(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sync(ctx); err != nil {
		return stackerrors.Transient(fmt.Errorf("syncing git repo: %w", err))
	}

	path := g.instancePath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	relPath := filepath.Join("stack_instances", name+".yaml")
	if _, err := wt.Add(relPath); err != nil {
		return fmt.Errorf("staging removal of %s: %w", relPath, err)
	}
	return g.commitAndPush(ctx, wt, "delete stack instance "+name)
}

func (g *GitStore) Close() error {
	return os.RemoveAll(g.localDir)
}

// sync ensures the local repo is up to date with the remote.
func (g *GitStore) sync(ctx context.Context) error {
	if g.repo == nil {
		return g.cloneRepo(ctx)
	}
	return g.pullRepo(ctx)
}

func (g *GitStore) cloneRepo(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(g.localDir), 0o755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}
	_ = os.RemoveAll(g.localDir)

	opts := &git.CloneOptions{
		URL:           g.repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(g.branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          g.auth,
	}

	repo, err := git.PlainCloneContext(ctx, g.localDir, false, opts)
	if err != nil {
		return fmt.Errorf("cloning repo: %w", err)
	}
	g.repo = repo
	return nil
}

func (g *GitStore) pullRepo(ctx context.Context) error {
	refSpec := gitconfig.RefSpec(
		fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", g.branch, g.branch),
	)

	err := g.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Depth:      1,
		Auth:       g.auth,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetching: %w", err)
	}

	remoteRef, err := g.repo.Reference(plumbing.NewRemoteReferenceName("origin", g.branch), true)
	if err != nil {
		return fmt.Errorf("resolving remote ref: %w", err)
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting to remote HEAD: %w", err)
	}

	return nil
}

// writeAndCommit writes body to path (relPath within the repo) and
// commits+pushes the change.
func (g *GitStore) writeAndCommit(ctx context.Context, path, relPath string, body []byte, message string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if _, err := wt.Add(relPath); err != nil {
		return fmt.Errorf("staging %s: %w", relPath, err)
	}
	return g.commitAndPush(ctx, wt, message)
}

func (g *GitStore) commitAndPush(ctx context.Context, wt *git.Worktree, message string) error {
	g.author.When = time.Now()
	if _, err := wt.Commit(message, &git.CommitOptions{Author: &g.author}); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if err := g.repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: g.auth}); err != nil && err != git.NoErrAlreadyUpToDate {
		return stackerrors.Transient(fmt.Errorf("pushing: %w", err))
	}
	return nil
}

// gitAuth returns HTTP basic auth using GITHUB_TOKEN for HTTPS GitHub URLs.
func gitAuth(repoURL string) transport.AuthMethod {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil
	}
	const prefix = "https://github.com/"
	if !strings.HasPrefix(repoURL, prefix) {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: token}
}
