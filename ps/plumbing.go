package ps

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// createBlob writes a blob directly into the object store, bypassing the
// worktree so checkpoints never touch the filesystem.
func (persistence *Persistence) createBlob(data []byte) (plumbing.Hash, error) {
	obj := persistence.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("creating blob writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("writing blob data: %w", err)
	}
	writer.Close()

	hash, err := persistence.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing blob: %w", err)
	}
	return hash, nil
}

// buildTree creates a tree holding the given files, creating intermediate
// directory trees for nested paths. Every checkpoint builds its tree from
// scratch, so dropped tables simply stop appearing.
func (persistence *Persistence) buildTree(files map[string]plumbing.Hash) (plumbing.Hash, error) {
	leaves := make(map[string]plumbing.Hash)
	grouped := make(map[string]map[string]plumbing.Hash)

	for filePath, blobHash := range files {
		name, rest, nested := strings.Cut(filePath, "/")
		if !nested {
			leaves[name] = blobHash
			continue
		}
		if grouped[name] == nil {
			grouped[name] = make(map[string]plumbing.Hash)
		}
		grouped[name][rest] = blobHash
	}

	entries := make([]object.TreeEntry, 0, len(leaves)+len(grouped))
	for name, blobHash := range leaves {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blobHash})
	}
	for name, subFiles := range grouped {
		subTreeHash, err := persistence.buildTree(subFiles)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subTreeHash})
	}

	return persistence.buildTreeFromEntries(entries)
}

func (persistence *Persistence) buildTreeFromEntries(entries []object.TreeEntry) (plumbing.Hash, error) {
	// Git requires entries sorted by name, directories comparing with a
	// trailing slash.
	sort.Slice(entries, func(i, j int) bool {
		nameI := entries[i].Name
		nameJ := entries[j].Name
		if entries[i].Mode == filemode.Dir {
			nameI += "/"
		}
		if entries[j].Mode == filemode.Dir {
			nameJ += "/"
		}
		return nameI < nameJ
	})

	tree := &object.Tree{Entries: entries}
	obj := persistence.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding tree: %w", err)
	}
	hash, err := persistence.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing tree: %w", err)
	}
	return hash, nil
}

// createCommit commits the tree onto the current branch without using the
// worktree.
func (persistence *Persistence) createCommit(treeHash plumbing.Hash, message string, when time.Time) (plumbing.Hash, error) {
	var parentHashes []plumbing.Hash
	headRef, err := persistence.repo.Head()
	if err == nil {
		parentHashes = []plumbing.Hash{headRef.Hash()}
	}

	sig := object.Signature{
		Name:  persistence.identity.Name,
		Email: persistence.identity.Email,
		When:  when,
	}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}

	obj := persistence.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding commit: %w", err)
	}
	commitHash, err := persistence.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing commit: %w", err)
	}

	branchName := plumbing.Master
	if headRef != nil && headRef.Name().IsBranch() {
		branchName = headRef.Name()
	}
	ref := plumbing.NewHashReference(branchName, commitHash)
	if err := persistence.repo.Storer.SetReference(ref); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("updating %s: %w", branchName, err)
	}
	return commitHash, nil
}

func (persistence *Persistence) headCommit() (*object.Commit, error) {
	headRef, err := persistence.repo.Head()
	if err != nil {
		return nil, ErrNoCheckpoint
	}
	commit, err := persistence.repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading head commit: %w", err)
	}
	return commit, nil
}

func readCommitFile(commit *object.Commit, filePath string) ([]byte, error) {
	file, err := commit.File(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// listCommitDir returns the file names directly under a directory of the
// commit's tree. A missing directory is an empty listing.
func listCommitDir(commit *object.Commit, dirPath string) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading commit tree: %w", err)
	}
	subTree, err := tree.Tree(dirPath)
	if err != nil {
		return nil, nil
	}

	var names []string
	for _, entry := range subTree.Entries {
		if entry.Mode != filemode.Dir {
			names = append(names, entry.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
