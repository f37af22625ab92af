package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/kevinburke/ssh_config"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrNoCredentials = errors.New("no ssh credentials available")

var commitHash = regexp2.MustCompile(`^[0-9a-f]{40}$`, regexp2.None)

type GitAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	SSHUser      string `yaml:"sshUser"`
	IdentityFile string `yaml:"identityFile"`
	Passphrase   string `yaml:"passphrase"`
	KnownHosts   string `yaml:"knownHosts"`
	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool `yaml:"insecureIgnoreHostKey"`
}

// Git reads a compose file out of an in-memory clone of a repository.
type Git struct {
	URL  string
	Ref  string // branch, tag, full ref name or commit hash; empty for HEAD
	Path string
	// Depth of the clone; 0 means 1. Ignored when Ref is a commit hash.
	Depth int
	Auth  GitAuth
	Log   logrus.FieldLogger

	sshConfig func(alias, key string) string
}

func (g *Git) String() string {
	if g.Ref == "" {
		return g.URL + "//" + g.Path
	}
	return g.URL + "@" + g.Ref + "//" + g.Path
}

func (g *Git) Fetch(ctx context.Context) ([]byte, error) {
	ep, err := transport.NewEndpoint(g.URL)
	if err != nil {
		return nil, fmt.Errorf("git url %q: %w", g.URL, err)
	}
	auth, closer, err := g.authMethod(ep)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	opts := &git.CloneOptions{URL: g.URL, Auth: auth}
	hash, _ := commitHash.MatchString(g.Ref)
	if !hash {
		opts.Depth = max(g.Depth, 1)
		opts.SingleBranch = true
		opts.ReferenceName = refName(g.Ref)
	}

	g.logger().WithFields(logrus.Fields{
		"url":      g.URL,
		"ref":      g.Ref,
		"path":     g.Path,
		"protocol": ep.Protocol,
	}).Debug("cloning")

	fs := memfs.New()
	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", g.URL, err)
	}
	if hash {
		wt, err := repo.Worktree()
		if err != nil {
			return nil, err
		}
		if err = wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(g.Ref), Force: true}); err != nil {
			return nil, fmt.Errorf("checkout %s: %w", g.Ref, err)
		}
	}
	return readFile(fs, g.Path)
}

func refName(ref string) plumbing.ReferenceName {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "refs/"):
		return plumbing.ReferenceName(ref)
	case strings.HasPrefix(ref, "tags/"):
		return plumbing.NewTagReferenceName(strings.TrimPrefix(ref, "tags/"))
	}
	return plumbing.NewBranchReferenceName(ref)
}

func readFile(fs billy.Filesystem, p string) ([]byte, error) {
	p = path.Clean("/" + filepath.ToSlash(p))
	f, err := fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAll(f)
}

func readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	return b, nil
}

// authMethod picks credentials for ep. The returned closer, if any, must be
// closed once the clone is done.
func (g *Git) authMethod(ep *transport.Endpoint) (transport.AuthMethod, io.Closer, error) {
	switch ep.Protocol {
	case "http", "https":
		if g.Auth.Username == "" && g.Auth.Password == "" {
			return nil, nil, nil
		}
		user := g.Auth.Username
		if user == "" {
			// token auth; most forges accept any non-empty user
			user = "git"
		}
		return &githttp.BasicAuth{Username: user, Password: g.Auth.Password}, nil, nil
	case "ssh":
		return g.sshAuth(ep)
	}
	return nil, nil, nil
}

func (g *Git) sshAuth(ep *transport.Endpoint) (transport.AuthMethod, io.Closer, error) {
	lookup := g.sshConfig
	if lookup == nil {
		lookup = ssh_config.Get
	}
	user := lo.CoalesceOrEmpty(g.Auth.SSHUser, ep.User, lookup(ep.Host, "User"), "git")

	hostKeys, err := g.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}

	if g.Auth.IdentityFile == "" && sshagent.Available() {
		ag, conn, err := sshagent.New()
		if err == nil {
			g.logger().WithField("user", user).Debug("using ssh agent")
			auth := &gitssh.PublicKeysCallback{User: user, Callback: ag.Signers}
			auth.HostKeyCallback = hostKeys
			return auth, conn, nil
		}
		g.logger().WithError(err).Debug("ssh agent unavailable")
	}

	identity := lo.CoalesceOrEmpty(g.Auth.IdentityFile, lookup(ep.Host, "IdentityFile"))
	if identity == "" {
		return nil, nil, fmt.Errorf("%w for %s", ErrNoCredentials, ep.Host)
	}
	identity = expandHome(identity)
	pem, err := os.ReadFile(identity)
	if err != nil {
		return nil, nil, fmt.Errorf("%w for %s: %v", ErrNoCredentials, ep.Host, err)
	}
	signer, err := parseKey(pem, g.Auth.Passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("identity %s: %w", identity, err)
	}
	g.logger().WithFields(logrus.Fields{"user": user, "identity": identity}).Debug("using ssh identity")
	auth := &gitssh.PublicKeys{User: user, Signer: signer}
	auth.HostKeyCallback = hostKeys
	return auth, nil, nil
}

func parseKey(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

func (g *Git) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if g.Auth.InsecureIgnoreHostKey {
		g.logger().Warn("ssh host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := g.Auth.KnownHosts
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	cb, err := knownhosts.New(expandHome(file))
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return cb, nil
}

func (g *Git) logger() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
