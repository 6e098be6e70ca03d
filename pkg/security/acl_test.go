package security

import (
	"context"
	"testing"

	"github.com/marmos91/dittorepo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testACL(t *testing.T, anonymous bool) *ACL {
	t.Helper()
	acl, err := NewACL([]string{"root"}, anonymous, []PermissionTarget{
		{
			Name:         "releases",
			Repositories: []string{"libs-release"},
			Excludes:     []string{"secret/**"},
			Principals: map[string][]Action{
				"ci":        {ActionRead, ActionDeploy},
				"anonymous": {ActionRead},
			},
		},
		{
			Name:         "cleanup",
			Repositories: []string{AnyRepository},
			Includes:     []string{"tmp/**"},
			Principals: map[string][]Action{
				"ci": {ActionDelete},
			},
		},
	})
	require.NoError(t, err)
	return acl
}

func TestACL(t *testing.T) {
	acl := testACL(t, false)
	ci := WithUser(context.Background(), "ci")
	lib := storage.MustRepoPath("libs-release", "org/lib/1.0/lib-1.0.jar")

	assert.True(t, acl.CanRead(ci, lib))
	assert.True(t, acl.CanDeploy(ci, lib))
	assert.False(t, acl.CanDelete(ci, lib))
	assert.False(t, acl.CanAnnotate(ci, lib))

	assert.False(t, acl.CanRead(ci, storage.MustRepoPath("libs-release", "secret/key.txt")))
	assert.False(t, acl.CanRead(ci, storage.MustRepoPath("other", "org/lib")))

	assert.True(t, acl.CanDelete(ci, storage.MustRepoPath("other", "tmp/x")))
	assert.False(t, acl.CanDelete(ci, storage.MustRepoPath("other", "keep/x")))
}

func TestACLAdminsBypass(t *testing.T) {
	acl := testACL(t, false)
	root := WithUser(context.Background(), "root")

	assert.True(t, acl.CanDelete(root, storage.MustRepoPath("anything", "at/all")))
}

func TestACLAnonymous(t *testing.T) {
	lib := storage.MustRepoPath("libs-release", "org/lib")

	assert.False(t, testACL(t, false).CanRead(context.Background(), lib))
	assert.True(t, testACL(t, true).CanRead(context.Background(), lib))
	assert.False(t, testACL(t, true).CanDeploy(context.Background(), lib))
}

func TestNewACLRejectsBadPatterns(t *testing.T) {
	_, err := NewACL(nil, false, []PermissionTarget{{Name: "bad", Includes: []string{"[oops"}}})
	assert.Error(t, err)
}

func TestUserFrom(t *testing.T) {
	assert.Equal(t, Anonymous, UserFrom(context.Background()))
	assert.Equal(t, "alice", UserFrom(WithUser(context.Background(), "alice")))
	assert.True(t, AllowAll{}.CanDelete(context.Background(), storage.Root("x")))
}
