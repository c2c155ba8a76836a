package intel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCVEs(t *testing.T) {
	text := "Both CVE-2024-1234 and cve-2021-44228 are exploited; CVE-2024-1234 again."
	assert.Equal(t, []string{"CVE-2021-44228", "CVE-2024-1234"}, ExtractCVEs(text))
	assert.Empty(t, ExtractCVEs("no identifiers here, not even CVE-123"))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RolePro, ParseRole("pro"))
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RolePublic, ParseRole("superuser"))
	assert.Equal(t, RolePublic, ParseRole(""))
}

func TestRolesAtOrAbove(t *testing.T) {
	assert.Equal(t, []Role{RolePublic, RolePro, RoleAdmin}, RolesAtOrAbove(RolePublic))
	assert.Equal(t, []Role{RolePro, RoleAdmin}, RolesAtOrAbove(RolePro))
	assert.Equal(t, []Role{RoleAdmin}, RolesAtOrAbove(RoleAdmin))
}

func TestRoleAllows(t *testing.T) {
	assert.True(t, RoleAllows(RoleAdmin, RolePublic))
	assert.True(t, RoleAllows(RolePro, RolePro))
	assert.False(t, RoleAllows(RolePublic, RolePro))
}

func TestSourceRolesCoverAllSources(t *testing.T) {
	for _, src := range []Source{SourceCatalog, SourceKrebsBlog, SourceMSRCBlog, SourceVulnDB, SourceExploitFeed, SourceUser} {
		_, ok := SourceRoles[src]
		assert.True(t, ok, "missing role policy for %s", src)
	}
}
