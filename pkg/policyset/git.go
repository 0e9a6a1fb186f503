package policyset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"k8s.io/klog/v2"
)

// Clone clones the repository into a new temporary directory and checks out ref, which may be a
// branch, a tag or a commit. The caller removes the directory. A token is passed in the URL user
// info.
func Clone(ctx context.Context, repoURL, ref, token string) (string, error) {
	cloneURL := repoURL
	if len(token) > 0 {
		pos := strings.Index(repoURL, "//")
		if pos <= 0 {
			return "", fmt.Errorf("invalid github_repo_url %s", repoURL)
		}
		cloneURL = repoURL[:pos+2] + token + "@" + repoURL[pos+2:]
	}

	dir, err := os.MkdirTemp("", "ocmplus-policyset-")
	if err != nil {
		return "", err
	}

	klog.FromContext(ctx).V(2).Info("Cloning repository", "url", repoURL, "ref", ref, "dir", dir)
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: cloneURL, Tags: git.AllTags})
	if err != nil {
		_ = os.RemoveAll(dir)
		msg := err.Error()
		if len(token) > 0 {
			msg = strings.ReplaceAll(msg, token, "****")
		}
		return "", fmt.Errorf("failed to clone repo %s: %s", repoURL, msg)
	}

	if len(ref) > 0 {
		if err := checkout(repo, ref); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("failed to checkout %s of repo %s: %w", ref, repoURL, err)
		}
	}
	return dir, nil
}

// checkout resolves ref as a remote branch, then a tag, then any revision, and checks out the
// commit it points to.
func checkout(repo *git.Repository, ref string) error {
	revisions := []string{
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, ref).String(),
		plumbing.NewTagReferenceName(ref).String(),
		ref,
	}

	var hash *plumbing.Hash
	var err error
	for _, revision := range revisions {
		if hash, err = repo.ResolveRevision(plumbing.Revision(revision)); err == nil {
			break
		}
	}
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	return worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true})
}
