// Package statusfs projects the Status Projection (internal/status) onto a
// read-only browsable directory tree: mount/<adapter>/<scope>/<artifact-
// type>/<name>, one file per status entry, file content the entry's
// human-readable detail. Adapted from the teacher's pkg/fuse/{fs,dir,file}.go
// with every write path (Create, Write, Setattr) deliberately dropped — the
// spec's non-goals rule out real-time filesystem-to-catalog reverse sync, so
// this mount is read-only by construction, never a new write surface.
package statusfs

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/mkern/rulesync/internal/model"
	"github.com/mkern/rulesync/internal/status"
)

var scopeNames = []string{string(model.ScopeGlobal), string(model.ScopeLocal)}

var artifactTypeNames = []string{
	string(model.ArtifactRule),
	string(model.ArtifactCommandStub),
	string(model.ArtifactSlashCommand),
	string(model.ArtifactSkill),
}

func sanitizeFilename(name string) string {
	if name == "" {
		return "unnamed"
	}
	r := strings.NewReplacer("/", "_", "\\", "_")
	return r.Replace(name) + ".status"
}

func entryDetail(e status.ArtifactStatusEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "artifact: %s\n", e.ArtifactName)
	fmt.Fprintf(&b, "type: %s\n", e.ArtifactType)
	fmt.Fprintf(&b, "adapter: %s\n", e.Adapter)
	fmt.Fprintf(&b, "scope: %s\n", e.Scope)
	if e.RepoRoot != "" {
		fmt.Fprintf(&b, "repo_root: %s\n", e.RepoRoot)
	}
	fmt.Fprintf(&b, "status: %s\n", e.Status)
	fmt.Fprintf(&b, "expected_path: %s\n", e.ExpectedPath)
	if e.LastOperation != "" {
		fmt.Fprintf(&b, "last_operation: %s at %s\n", e.LastOperation, e.LastOperationAt.Format(time.RFC3339))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "detail: %s\n", e.Detail)
	}
	return b.String()
}

// Root is the mount's root inode: one subdirectory per adapter in the
// closed registry set.
type Root struct {
	fs.Inode
	proj      *status.Projection
	repoRoots []string
}

// New builds the root of a read-only status mount over proj, scoped to
// repoRoots for local-scope entries.
func New(proj *status.Projection, repoRoots []string) *Root {
	return &Root{proj: proj, repoRoots: repoRoots}
}

// Mount mounts the status tree at mountpoint, mirroring the teacher's
// LinearFS.Mount lifecycle.
func (r *Root) Mount(mountpoint string) (*fuse.Server, error) {
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:     "rulesync-status",
			FsName:   "rulesync-status",
			ReadOnly: true,
		},
	}
	server, err := fs.Mount(mountpoint, r, opts)
	if err != nil {
		return nil, fmt.Errorf("mount failed: %w", err)
	}
	return server, nil
}

var _ = (fs.NodeReaddirer)((*Root)(nil))
var _ = (fs.NodeLookuper)((*Root)(nil))

func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(model.AllAdapters))
	for _, a := range model.AllAdapters {
		entries = append(entries, fuse.DirEntry{Name: string(a), Mode: fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, a := range model.AllAdapters {
		if string(a) == name {
			child := r.NewInode(ctx, &adapterDir{proj: r.proj, repoRoots: r.repoRoots, adapter: a}, fs.StableAttr{Mode: fuse.S_IFDIR})
			return child, fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// adapterDir lists the two scopes under one adapter.
type adapterDir struct {
	fs.Inode
	proj      *status.Projection
	repoRoots []string
	adapter   model.AdapterId
}

var _ = (fs.NodeReaddirer)((*adapterDir)(nil))
var _ = (fs.NodeLookuper)((*adapterDir)(nil))

func (d *adapterDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(scopeNames))
	for _, s := range scopeNames {
		entries = append(entries, fuse.DirEntry{Name: s, Mode: fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *adapterDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, s := range scopeNames {
		if s == name {
			child := d.NewInode(ctx, &scopeDir{proj: d.proj, repoRoots: d.repoRoots, adapter: d.adapter, scope: model.Scope(s)}, fs.StableAttr{Mode: fuse.S_IFDIR})
			return child, fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// scopeDir lists the artifact-type directories under one (adapter, scope).
type scopeDir struct {
	fs.Inode
	proj      *status.Projection
	repoRoots []string
	adapter   model.AdapterId
	scope     model.Scope
}

var _ = (fs.NodeReaddirer)((*scopeDir)(nil))
var _ = (fs.NodeLookuper)((*scopeDir)(nil))

func (d *scopeDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(artifactTypeNames))
	for _, t := range artifactTypeNames {
		entries = append(entries, fuse.DirEntry{Name: t, Mode: fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *scopeDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, t := range artifactTypeNames {
		if t == name {
			child := d.NewInode(ctx, &typeDir{
				proj: d.proj, repoRoots: d.repoRoots, adapter: d.adapter, scope: d.scope,
				artifactType: model.ArtifactType(t),
			}, fs.StableAttr{Mode: fuse.S_IFDIR})
			return child, fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// typeDir lists one status file per matching projection entry.
type typeDir struct {
	fs.Inode
	proj         *status.Projection
	repoRoots    []string
	adapter      model.AdapterId
	scope        model.Scope
	artifactType model.ArtifactType
}

var _ = (fs.NodeReaddirer)((*typeDir)(nil))
var _ = (fs.NodeLookuper)((*typeDir)(nil))

func (d *typeDir) filter() status.StatusFilter {
	adapter, scope, artifactType := d.adapter, d.scope, d.artifactType
	return status.StatusFilter{Adapter: &adapter, Scope: &scope, ArtifactType: &artifactType}
}

func (d *typeDir) list(ctx context.Context) ([]status.ArtifactStatusEntry, syscall.Errno) {
	entries, _, err := d.proj.ComputeStatus(ctx, d.filter(), d.repoRoots)
	if err != nil {
		return nil, syscall.EIO
	}
	return entries, fs.OK
}

func (d *typeDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	statusEntries, errno := d.list(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	out := make([]fuse.DirEntry, 0, len(statusEntries))
	for _, e := range statusEntries {
		out = append(out, fuse.DirEntry{Name: sanitizeFilename(e.ArtifactName), Mode: fuse.S_IFREG})
	}
	return fs.NewListDirStream(out), fs.OK
}

func (d *typeDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	statusEntries, errno := d.list(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	for _, e := range statusEntries {
		if sanitizeFilename(e.ArtifactName) == name {
			child := d.NewInode(ctx, &statusFile{entry: e}, fs.StableAttr{Mode: fuse.S_IFREG})
			return child, fs.OK
		}
	}
	return nil, syscall.ENOENT
}

// statusFile is a single read-only leaf rendering one status entry's detail.
type statusFile struct {
	fs.Inode
	entry status.ArtifactStatusEntry
}

var _ = (fs.NodeOpener)((*statusFile)(nil))
var _ = (fs.NodeReader)((*statusFile)(nil))
var _ = (fs.NodeGetattrer)((*statusFile)(nil))

func (f *statusFile) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *statusFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content := []byte(entryDetail(f.entry))
	if off >= int64(len(content)) {
		return fuse.ReadResultData([]byte{}), fs.OK
	}
	end := int(off) + len(dest)
	if end > len(content) {
		end = len(content)
	}
	return fuse.ReadResultData(content[off:end]), fs.OK
}

func (f *statusFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	content := entryDetail(f.entry)
	out.Mode = 0o444
	out.Size = uint64(len(content))
	if !f.entry.LastOperationAt.IsZero() {
		out.Mtime = uint64(f.entry.LastOperationAt.Unix())
	}
	return fs.OK
}
