package relocate

import (
	"context"
	"sync"
	"testing"

	"github.com/marmos91/dittorepo/pkg/indexer"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/security"
	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{SingleTransaction, PerItem}

func TestMoveFolderWithExcludedSignature(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t)
			f.deploy(t, "libs-release:lib/1.0/a.jar", "jar")
			f.deploy(t, "libs-release:lib/1.0/a.jar.asc", "sig")

			status, err := f.engine.Relocate(context.Background(),
				rp("libs-release:lib/1.0"), rp("libs-target:lib/1.0"), NewMoveConfig(WithStrategy(strategy)))
			require.NoError(t, err)

			assert.Equal(t, 1, status.MovedFiles())
			assert.Len(t, status.Warnings(), 1)
			assert.Empty(t, status.Errors())
			assert.Equal(t, CodeForbidden, status.Warnings()[0].Code)

			assert.Equal(t, []string{"a.jar"}, f.children(t, "libs-target:lib/1.0"))
			// The rejected signature stays behind, so the source folder is kept.
			assert.Equal(t, []string{"a.jar.asc"}, f.children(t, "libs-release:lib/1.0"))

			assert.Contains(t, status.MetadataCandidates(), rp("libs-target:lib"))
			assert.Contains(t, status.MetadataCandidates(), rp("libs-release:lib"))
		})
	}
}

func TestRelocateSeededTree(t *testing.T) {
	want := []entryKey{
		{LevelError, CodeValidationFailure, "libs-release:tree/bad/2.0/bad-2.0.pom"},
		{LevelError, CodeConflict, "libs-release:tree/clash"},
		{LevelWarning, CodeForbidden, "libs-release:tree/lib/1.0/lib-1.0.jar.asc"},
		{LevelError, CodePolicyRejection, "libs-release:tree/lib/1.1-SNAPSHOT/lib-1.1-SNAPSHOT.jar"},
		{LevelWarning, CodeForbidden, "libs-release:tree/sig/x.asc"},
	}

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t)
			seedTree(t, f)

			status, err := f.engine.Relocate(context.Background(),
				rp("libs-release:tree"), rp("libs-target:tree"), NewMoveConfig(WithStrategy(strategy)))
			require.NoError(t, err)

			assert.Equal(t, want, keys(status.Entries()))
			assert.Equal(t, 3, status.MovedFiles())
			assert.Equal(t, 4, status.MovedFolders())
			assert.False(t, status.Cancelled())

			assert.Equal(t, "new content", f.read(t, "libs-target:tree/over/file.txt"))
			assert.True(t, f.exists(t, "libs-target:tree/lib/1.0/lib-1.0.jar"))
			assert.True(t, f.exists(t, "libs-target:tree/lib/1.0/lib-1.0.pom"))

			// Folders whose children were all rejected are not left behind.
			assert.False(t, f.exists(t, "libs-target:tree/bad"))
			assert.False(t, f.exists(t, "libs-target:tree/sig"))
			assert.False(t, f.exists(t, "libs-target:tree/lib/1.1-SNAPSHOT"))

			// Rejected items stay at the source; emptied folders are pruned.
			assert.True(t, f.exists(t, "libs-release:tree/bad/2.0/bad-2.0.pom"))
			assert.True(t, f.exists(t, "libs-release:tree/lib/1.0/lib-1.0.jar.asc"))
			assert.False(t, f.exists(t, "libs-release:tree/lib/1.0/lib-1.0.jar"))
			assert.False(t, f.exists(t, "libs-release:tree/over"))
		})
	}
}

func TestDryRunEquivalence(t *testing.T) {
	configs := map[string][]Option{
		"move":           nil,
		"copy":           {AsCopy()},
		"move fail-fast": {FailFast()},
		"copy fail-fast": {AsCopy(), FailFast()},
		"move deferred":  {PruneDeferred()},
		"move sync":      {SyncMetadata()},
	}

	for name, opts := range configs {
		for _, strategy := range strategies {
			t.Run(name+"/"+strategy.String(), func(t *testing.T) {
				ctx := context.Background()
				cfg := NewMoveConfig(append(opts, WithStrategy(strategy))...)

				dry := newFixture(t)
				seedTree(t, dry)
				before := dry.dump(t)
				preview, err := dry.engine.Preview(ctx, rp("libs-release:tree"), rp("libs-target:tree"), cfg)
				require.NoError(t, err)
				assert.Equal(t, before, dry.dump(t), "dry run must not mutate storage")
				assert.Empty(t, preview.MetadataCandidates())

				real := newFixture(t)
				seedTree(t, real)
				status, err := real.engine.Relocate(ctx, rp("libs-release:tree"), rp("libs-target:tree"), cfg)
				require.NoError(t, err)

				assert.Equal(t, keys(status.Entries()), keys(preview.Entries()))
				assert.Equal(t, status.MovedFiles(), preview.MovedFiles())
				assert.Equal(t, status.MovedFolders(), preview.MovedFolders())
				assert.Equal(t, status.Cancelled(), preview.Cancelled())
			})
		}
	}
}

func TestChecksumPreservation(t *testing.T) {
	f := newFixture(t)
	src := f.deploy(t, "libs-release:c/f.bin", "some binary content")
	ctx := context.Background()

	// Different binary store: streamed and verified.
	status, err := f.engine.Copy(ctx, rp("libs-release:c/f.bin"), rp("libs-other:c/f.bin"))
	require.NoError(t, err)
	require.Equal(t, 1, status.MovedFiles())

	// Same binary store: linked.
	status, err = f.engine.Move(ctx, rp("libs-release:c/f.bin"), rp("libs-target:c/f.bin"))
	require.NoError(t, err)
	require.Equal(t, 1, status.MovedFiles())

	for _, path := range []string{"libs-other:c/f.bin", "libs-target:c/f.bin"} {
		item := f.resolve(t, path)
		require.NotNil(t, item, path)
		assert.Equal(t, src.Checksums.SHA1, item.Checksums.SHA1, path)
		assert.Equal(t, src.Checksums.MD5, item.Checksums.MD5, path)
		assert.Equal(t, "some binary content", f.read(t, path))
	}
}

func TestIdenticalContentIsStoredOnce(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:dup/a.bin", "same bytes")
	f.deploy(t, "libs-release:dup/b.bin", "same bytes")
	ctx := context.Background()

	_, err := f.engine.Copy(ctx, rp("libs-release:dup/a.bin"), rp("libs-other:x/a.bin"))
	require.NoError(t, err)
	_, err = f.engine.Copy(ctx, rp("libs-release:dup/b.bin"), rp("libs-other:y/b.bin"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.secondary.Writes())
	stats, err := f.secondary.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Binaries)
	assert.True(t, f.exists(t, "libs-other:y/b.bin"))
}

func TestMoveDeletesSourceCopyKeepsIt(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t)
			f.deploy(t, "libs-release:m/f.txt", "move me")
			f.deploy(t, "libs-release:k/f.txt", "copy me")
			ctx := context.Background()

			_, err := f.engine.Move(ctx, rp("libs-release:m/f.txt"), rp("libs-target:m/f.txt"), WithStrategy(strategy))
			require.NoError(t, err)
			assert.False(t, f.exists(t, "libs-release:m/f.txt"))
			assert.False(t, f.exists(t, "libs-release:m"), "emptied source folder is pruned")
			assert.True(t, f.exists(t, "libs-target:m/f.txt"))

			_, err = f.engine.Copy(ctx, rp("libs-release:k/f.txt"), rp("libs-target:k/f.txt"), WithStrategy(strategy))
			require.NoError(t, err)
			assert.True(t, f.exists(t, "libs-release:k/f.txt"))
			assert.True(t, f.exists(t, "libs-target:k/f.txt"))
		})
	}
}

func TestUnixStyleNesting(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:a/f.txt", "f")
	f.deploy(t, "libs-release:b/x.txt", "x")
	ctx := context.Background()

	status, err := f.engine.Move(ctx, rp("libs-release:a/f.txt"), rp("libs-release:b"), UnixStyle())
	require.NoError(t, err)
	assert.Equal(t, 1, status.MovedFiles())
	assert.True(t, f.exists(t, "libs-release:b/f.txt"))
	assert.True(t, f.exists(t, "libs-release:b/x.txt"))
	assert.False(t, f.exists(t, "libs-release:a"))
}

func TestFileCannotReplaceFolder(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:a/f.txt", "f")
	f.deploy(t, "libs-release:b/x.txt", "x")

	status, err := f.engine.Move(context.Background(), rp("libs-release:a/f.txt"), rp("libs-release:b"))
	require.NoError(t, err)
	require.Len(t, status.Errors(), 1)
	assert.Equal(t, CodeConflict, status.Errors()[0].Code)
	assert.True(t, f.resolve(t, "libs-release:b").IsFolder())
	assert.True(t, f.exists(t, "libs-release:a/f.txt"))
}

func TestSelfRelocationIsRejected(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:a/f.txt", "f")
	before := f.dump(t)
	ctx := context.Background()

	cases := []struct {
		dst  string
		opts []Option
	}{
		{"libs-release:a", nil},
		{"libs-release:a/sub", nil},
		{"libs-release:", []Option{UnixStyle()}},
	}
	for _, tc := range cases {
		status, err := f.engine.Move(ctx, rp("libs-release:a"), rp(tc.dst), tc.opts...)
		require.NoError(t, err, tc.dst)
		require.Len(t, status.Errors(), 1, tc.dst)
		assert.Equal(t, CodeConflict, status.Errors()[0].Code, tc.dst)
		assert.Zero(t, status.Moved(), tc.dst)
	}
	assert.Equal(t, before, f.dump(t))
}

func TestFailFast(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()

			f := newFixture(t)
			f.deploy(t, "libs-release:ff/a.asc", "rejected")
			f.deploy(t, "libs-release:ff/b.jar", "accepted")
			f.deploy(t, "libs-release:ff/c/d.jar", "accepted")

			status, err := f.engine.Move(ctx, rp("libs-release:ff"), rp("libs-target:ff"), FailFast(), WithStrategy(strategy))
			require.NoError(t, err)
			assert.True(t, status.Cancelled())
			assert.Len(t, status.Warnings(), 1)
			assert.Zero(t, status.MovedFiles())
			assert.True(t, f.exists(t, "libs-release:ff/b.jar"))
			assert.True(t, f.exists(t, "libs-release:ff/c/d.jar"))
			assert.False(t, f.exists(t, "libs-target:ff"), "created target folder must not be left behind")

			g := newFixture(t)
			g.deploy(t, "libs-release:ff/a.asc", "rejected")
			g.deploy(t, "libs-release:ff/b.jar", "accepted")
			g.deploy(t, "libs-release:ff/c/d.jar", "accepted")

			status, err = g.engine.Move(ctx, rp("libs-release:ff"), rp("libs-target:ff"), WithStrategy(strategy))
			require.NoError(t, err)
			assert.False(t, status.Cancelled())
			assert.Equal(t, 2, status.MovedFiles())
			assert.True(t, g.exists(t, "libs-target:ff/c/d.jar"))
		})
	}
}

func TestEmptyTargetFolderCleanup(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t)
			f.deploy(t, "libs-release:sig/1.0/x.asc", "signature")

			status, err := f.engine.Move(context.Background(), rp("libs-release:sig/1.0"), rp("libs-target:sig/1.0"),
				WithStrategy(strategy))
			require.NoError(t, err)
			assert.Zero(t, status.Moved())
			assert.Len(t, status.Warnings(), 1)

			assert.False(t, f.exists(t, "libs-target:sig/1.0"))
			assert.False(t, f.exists(t, "libs-target:sig"))
			assert.True(t, f.exists(t, "libs-release:sig/1.0/x.asc"))
		})
	}
}

func TestPreexistingEmptyTargetFolderIsKept(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:sig/x.asc", "signature")
	f.mkdir(t, "libs-target:sig")

	_, err := f.engine.Move(context.Background(), rp("libs-release:sig"), rp("libs-target:sig"))
	require.NoError(t, err)
	assert.True(t, f.exists(t, "libs-target:sig"))
}

func TestPermissions(t *testing.T) {
	acl, err := security.NewACL(nil, false, []security.PermissionTarget{{
		Name:         "developers",
		Repositories: []string{releaseRepo, targetRepo},
		Principals: map[string][]security.Action{
			"dev": {security.ActionRead, security.ActionDeploy},
		},
	}})
	require.NoError(t, err)

	f := newFixture(t, func(d *Deps) { d.Authorizer = acl })
	f.deploy(t, "libs-release:p/f.txt", "f")
	f.deploy(t, "libs-target:p/existing.txt", "e")
	f.deploy(t, "libs-release:p2/existing.txt", "e2")
	ctx := security.WithUser(context.Background(), "dev")

	status, err := f.engine.Move(ctx, rp("libs-release:p/f.txt"), rp("libs-target:p/f.txt"))
	require.NoError(t, err)
	require.Len(t, status.Errors(), 1)
	assert.Equal(t, CodePermissionDenied, status.Errors()[0].Code)
	assert.Equal(t, 403, status.Errors()[0].Code.HTTPStatus())
	assert.True(t, f.exists(t, "libs-release:p/f.txt"))

	status, err = f.engine.Copy(ctx, rp("libs-release:p/f.txt"), rp("libs-target:p/f.txt"))
	require.NoError(t, err)
	assert.Empty(t, status.Errors())
	assert.True(t, f.exists(t, "libs-target:p/f.txt"))
	assert.Equal(t, "dev", f.resolve(t, "libs-target:p/f.txt").ModifiedBy)

	// Overwriting needs delete permission on the target.
	status, err = f.engine.Copy(ctx, rp("libs-release:p2/existing.txt"), rp("libs-target:p/existing.txt"))
	require.NoError(t, err)
	require.Len(t, status.Errors(), 1)
	assert.Equal(t, CodePermissionDenied, status.Errors()[0].Code)
	assert.Equal(t, "e", f.read(t, "libs-target:p/existing.txt"))
}

type recorder struct {
	BaseInterceptor
	events []string
	cancel string
}

func (r *recorder) BeforeFolder(_ context.Context, ev Event) error {
	r.events = append(r.events, "before-folder "+ev.Source.Path.Path)
	if ev.Source.Path.Path == r.cancel {
		return ErrCancelSubtree
	}
	return nil
}

func (r *recorder) AfterFolder(_ context.Context, ev Event) {
	r.events = append(r.events, "after-folder "+ev.Source.Path.Path)
}

func (r *recorder) BeforeFile(_ context.Context, ev Event) error {
	r.events = append(r.events, "before-file "+ev.Source.Path.Path)
	return nil
}

func (r *recorder) AfterFile(_ context.Context, ev Event) {
	r.events = append(r.events, "after-file "+ev.Source.Path.Path)
}

func TestInterceptors(t *testing.T) {
	for _, dryRun := range []bool{false, true} {
		rec := &recorder{cancel: "i/skip"}
		f := newFixture(t, func(d *Deps) { d.Interceptors = []Interceptor{rec} })
		f.deploy(t, "libs-release:i/keep/k.txt", "k")
		f.deploy(t, "libs-release:i/skip/s.txt", "s")
		f.deploy(t, "libs-release:i/top.txt", "t")

		opts := []Option{AsCopy()}
		if dryRun {
			opts = append(opts, DryRun())
		}
		status, err := f.engine.Relocate(context.Background(), rp("libs-release:i"), rp("libs-other:i"), NewMoveConfig(opts...))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"before-folder i",
			"before-folder i/keep",
			"before-file i/keep/k.txt",
			"after-file i/keep/k.txt",
			"after-folder i/keep",
			"before-folder i/skip",
			"before-file i/top.txt",
			"after-file i/top.txt",
			"after-folder i",
		}, rec.events)

		require.Len(t, status.Errors(), 1)
		assert.Equal(t, CodeCancelled, status.Errors()[0].Code)
		assert.Equal(t, 2, status.MovedFiles())
		assert.False(t, f.exists(t, "libs-other:i/skip"))
		assert.Equal(t, !dryRun, f.exists(t, "libs-other:i/top.txt"))
	}
}

func TestSingleTransactionStorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	seedTree(t, f)
	before := f.dump(t)
	f.items.failOn = "lib-1.0.pom"

	status, err := f.engine.Move(context.Background(), rp("libs-release:tree"), rp("libs-target:tree"))
	require.Error(t, err)
	require.NotNil(t, status)

	assert.Zero(t, status.Moved())
	last, ok := status.LastError()
	require.True(t, ok)
	assert.Equal(t, CodeStorageFailure, last.Code)
	assert.Equal(t, before, f.dump(t))
}

func TestPerItemStorageFailureKeepsCommittedItems(t *testing.T) {
	f := newFixture(t)
	seedTree(t, f)
	f.items.failOn = "lib-1.0.pom"

	status, err := f.engine.Move(context.Background(), rp("libs-release:tree"), rp("libs-target:tree"),
		WithStrategy(PerItem))
	require.NoError(t, err)

	var failures []string
	for _, e := range status.Errors() {
		if e.Code == CodeStorageFailure {
			failures = append(failures, e.Path.String())
		}
	}
	assert.Equal(t, []string{"libs-release:tree/lib/1.0/lib-1.0.pom"}, failures)
	assert.Equal(t, 2, status.MovedFiles())
	assert.True(t, f.exists(t, "libs-target:tree/lib/1.0/lib-1.0.jar"))
	assert.True(t, f.exists(t, "libs-release:tree/lib/1.0/lib-1.0.pom"))
}

func TestSynchronousMetadataRecalculation(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:org/lib/1.0/lib-1.0.jar", "jar")

	status, err := f.engine.Move(context.Background(), rp("libs-release:org/lib/1.0"), rp("libs-target:org/lib/1.0"),
		SyncMetadata())
	require.NoError(t, err)
	assert.Empty(t, status.MetadataCandidates())
	assert.Empty(t, status.Entries())

	latest, ok := f.resolve(t, "libs-target:org/lib").Properties.Get(indexer.PropLatest)
	require.True(t, ok)
	assert.Equal(t, "1.0", latest)
	assert.False(t, f.exists(t, "libs-release:org"))
}

func TestSynchronousMetadataRecalculationUsesNearestSurvivingAncestor(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:org/lib/1.0/lib-1.0.jar", "jar")
	f.deploy(t, "libs-release:org/lib/2.0/lib-2.0.jar", "jar")
	ctx := context.Background()

	require.NoError(t, f.indexer.Recalculate(ctx, rp("libs-release:org/lib"), false))

	status, err := f.engine.Move(ctx, rp("libs-release:org/lib/2.0"), rp("libs-target:org/lib/2.0"), SyncMetadata())
	require.NoError(t, err)
	assert.Empty(t, status.Entries())

	latest, _ := f.resolve(t, "libs-release:org/lib").Properties.Get(indexer.PropLatest)
	assert.Equal(t, "1.0", latest)
}

func TestSyncMetadataDryRunEquivalence(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()
			cfg := NewMoveConfig(SyncMetadata(), WithStrategy(strategy))

			dry := newFixture(t)
			dry.deploy(t, "libs-release:lib/1.0/a.jar", "jar")
			preview, err := dry.engine.Preview(ctx, rp("libs-release:lib/1.0"), rp("libs-target:lib/1.0"), cfg)
			require.NoError(t, err)

			real := newFixture(t)
			real.deploy(t, "libs-release:lib/1.0/a.jar", "jar")
			status, err := real.engine.Relocate(ctx, rp("libs-release:lib/1.0"), rp("libs-target:lib/1.0"), cfg)
			require.NoError(t, err)

			assert.Equal(t, keys(preview.Entries()), keys(status.Entries()))
			assert.Empty(t, status.Warnings())
			assert.Equal(t, preview.Moved(), status.Moved())
			assert.False(t, real.exists(t, "libs-release:lib"))
		})
	}
}

// vanishingMetadata deletes folders of one repository right before
// recalculating them, as a concurrent request would.
type vanishingMetadata struct {
	MetadataService
	store   storage.Store
	repoKey string
}

func (v vanishingMetadata) Recalculate(ctx context.Context, folder storage.RepoPath, recursive bool) error {
	if folder.RepoKey == v.repoKey {
		err := v.store.Update(ctx, func(tx storage.Tx) error {
			_, err := tx.Delete(folder)
			return err
		})
		if err != nil {
			return err
		}
	}
	return v.MetadataService.Recalculate(ctx, folder, recursive)
}

func TestSynchronousMetadataRecalculationOfVanishedFolder(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Metadata = vanishingMetadata{MetadataService: d.Metadata, store: d.Store, repoKey: releaseRepo}
	})
	f.deploy(t, "libs-release:org/lib/1.0/lib-1.0.jar", "jar")
	f.deploy(t, "libs-release:org/lib/2.0/lib-2.0.jar", "jar")

	status, err := f.engine.Move(context.Background(), rp("libs-release:org/lib/1.0"), rp("libs-target:org/lib/1.0"),
		SyncMetadata())
	require.NoError(t, err)

	require.Len(t, status.Warnings(), 1)
	assert.Equal(t, CodeNotFound, status.Warnings()[0].Code)
	assert.Equal(t, rp("libs-release:org/lib"), status.Warnings()[0].Path)
	assert.Empty(t, status.Errors())
}

func TestDeferredMetadataCandidates(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:org/lib/1.0/lib-1.0.jar", "jar")
	f.deploy(t, "remote-cache:org/ext/2.0/ext-2.0.jar", "cached")
	ctx := context.Background()

	status, err := f.engine.Copy(ctx, rp("libs-release:org/lib/1.0"), rp("libs-target:org/lib/1.0"))
	require.NoError(t, err)
	assert.Equal(t, []storage.RepoPath{rp("libs-target:org/lib")}, status.MetadataCandidates())

	cached, err := f.engine.Move(ctx, rp("remote-cache:org/ext/2.0"), rp("libs-target:org/ext/2.0"))
	require.NoError(t, err)
	assert.Equal(t, []storage.RepoPath{rp("libs-target:org/ext")}, cached.MetadataCandidates())

	assert.Equal(t, 1, f.engine.FlushCandidates(status))
	assert.Equal(t, 1, f.engine.FlushCandidates(cached))
	assert.Empty(t, status.MetadataCandidates())
	assert.Equal(t, 2, f.indexer.Pending())

	require.NoError(t, f.indexer.Flush(ctx))
	latest, _ := f.resolve(t, "libs-target:org/ext").Properties.Get(indexer.PropLatest)
	assert.Equal(t, "2.0", latest)
}

func TestDeferredPruning(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			f := newFixture(t)
			f.deploy(t, "libs-release:d/1.0/f.txt", "f")
			f.deploy(t, "libs-release:d/2.0/sub/g.txt", "g")
			f.deploy(t, "libs-release:keep.txt", "k")

			status, err := f.engine.Move(context.Background(), rp("libs-release:d"), rp("libs-target:d"),
				PruneDeferred(), WithStrategy(strategy))
			require.NoError(t, err)
			assert.Equal(t, 2, status.MovedFiles())

			assert.True(t, f.exists(t, "libs-release:d/2.0/sub"))
			assert.Equal(t, 1, f.pruner.Pending())

			require.NoError(t, f.pruner.Flush(context.Background()))
			assert.False(t, f.exists(t, "libs-release:d"))
			assert.True(t, f.exists(t, "libs-release:keep.txt"))
			assert.True(t, f.exists(t, "libs-target:d/2.0/sub/g.txt"))
		})
	}
}

func TestPropertiesAreStamped(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:p/f.txt", "f")

	_, err := f.engine.Copy(context.Background(), rp("libs-release:p"), rp("libs-other:p"),
		WithProperties(storage.Properties{"build.number": {"42"}}))
	require.NoError(t, err)

	for _, path := range []string{"libs-other:p", "libs-other:p/f.txt"} {
		value, ok := f.resolve(t, path).Properties.Get("build.number")
		assert.True(t, ok, path)
		assert.Equal(t, "42", value, path)
	}
}

func TestMissingSourceAndUnknownRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.engine.Move(ctx, rp("libs-release:nothing"), rp("libs-target:nothing"))
	require.NoError(t, err)
	require.Len(t, status.Errors(), 1)
	assert.Equal(t, CodeNotFound, status.Errors()[0].Code)

	_, err = f.engine.Move(ctx, rp("nope:x"), rp("libs-target:x"))
	assert.ErrorIs(t, err, repository.ErrUnknownRepository)
}

func TestConcurrentMovesOfTheSameFile(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "libs-release:race/f.txt", "f")

	var wg sync.WaitGroup
	statuses := make([]*Status, 2)
	for i, dst := range []string{"libs-target:one/f.txt", "libs-other:two/f.txt"} {
		wg.Add(1)
		go func(i int, dst string) {
			defer wg.Done()
			status, err := f.engine.Move(context.Background(), rp("libs-release:race/f.txt"), rp(dst))
			assert.NoError(t, err)
			statuses[i] = status
		}(i, dst)
	}
	wg.Wait()

	moved := statuses[0].MovedFiles() + statuses[1].MovedFiles()
	assert.Equal(t, 1, moved)
	assert.NotEqual(t, f.exists(t, "libs-target:one/f.txt"), f.exists(t, "libs-other:two/f.txt"))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
