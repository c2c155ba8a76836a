package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctisec/ctihub/internal/intel"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	return NewBuilder(fixedClock{t: testNow})
}

func TestSourceIDNaturalKey(t *testing.T) {
	id := SourceID(intel.SourceCatalog, intel.RawItem{NaturalKey: "CVE-2024-1234"})
	assert.Equal(t, "catalog:CVE-2024-1234", id)
}

func TestSourceIDLinkDigest(t *testing.T) {
	a := SourceID(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com/post"})
	b := SourceID(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com/post"})
	c := SourceID(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com/other"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "krebs_blog:")
}

func TestSourceIDUserScopedByOwner(t *testing.T) {
	item := intel.RawItem{URL: "https://example.com/feed-item"}
	item.Owner = "alice"
	a := SourceID(intel.SourceUser, item)
	item.Owner = "bob"
	b := SourceID(intel.SourceUser, item)
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "user:alice:")
}

func TestRecordRolePolicy(t *testing.T) {
	b := newTestBuilder()

	rec := b.Record(intel.SourceCatalog, intel.RawItem{NaturalKey: "CVE-2024-1234", URL: "https://example.com"})
	assert.Equal(t, intel.RolePro, rec.MinRole)
	assert.Equal(t, []intel.Role{intel.RolePro, intel.RoleAdmin}, rec.AllowedRoles)

	rec = b.Record(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com"})
	assert.Equal(t, intel.RolePublic, rec.MinRole)
	assert.Len(t, rec.AllowedRoles, 3)

	rec = b.Record(intel.SourceVulnDB, intel.RawItem{NaturalKey: "CVE-2025-1"})
	assert.Equal(t, intel.RoleAdmin, rec.MinRole)
	assert.Equal(t, []intel.Role{intel.RoleAdmin}, rec.AllowedRoles)
}

func TestRecordMinRoleOverride(t *testing.T) {
	b := newTestBuilder()
	rec := b.Record(intel.SourceUser, intel.RawItem{
		URL:     "https://example.com/item",
		Owner:   "alice",
		MinRole: intel.RolePro,
	})
	assert.Equal(t, intel.RolePro, rec.MinRole)
	assert.Equal(t, []intel.Role{intel.RolePro, intel.RoleAdmin}, rec.AllowedRoles)
}

func TestRecordTimestampDefaulting(t *testing.T) {
	b := newTestBuilder()

	rec := b.Record(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com"})
	assert.Equal(t, testNow, rec.Timestamp)

	published := time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)
	rec = b.Record(intel.SourceKrebsBlog, intel.RawItem{URL: "https://example.com", Published: published})
	assert.Equal(t, published, rec.Timestamp)
}

func TestRecordOrigin(t *testing.T) {
	b := newTestBuilder()
	rec := b.Record(intel.SourceMSRCBlog, intel.RawItem{URL: "https://msrc.microsoft.com/blog/2025/01/post/"})
	assert.Equal(t, "msrc.microsoft.com", rec.Origin)
}

func TestRecordMergesCVEs(t *testing.T) {
	b := newTestBuilder()
	rec := b.Record(intel.SourceKrebsBlog, intel.RawItem{
		URL:     "https://example.com",
		Title:   "Attackers exploit cve-2024-9999",
		Content: "The bug, tracked as CVE-2024-0001, is under active attack.",
		CVEs:    []string{"CVE-2024-9999"},
	})
	assert.Equal(t, []string{"CVE-2024-0001", "CVE-2024-9999"}, rec.CVEs)
}

func TestRecordCapsReferences(t *testing.T) {
	b := newTestBuilder()
	refs := make([]string, 15)
	for i := range refs {
		refs[i] = "https://example.com/ref/" + string(rune('a'+i))
	}
	rec := b.Record(intel.SourceVulnDB, intel.RawItem{NaturalKey: "CVE-2025-2", References: refs})
	assert.Len(t, rec.References, 10)
}

func TestRecordDedupesWeaknesses(t *testing.T) {
	b := newTestBuilder()
	rec := b.Record(intel.SourceVulnDB, intel.RawItem{
		NaturalKey: "CVE-2025-3",
		Weaknesses: []string{"CWE-79", "CWE-20", "CWE-79", " "},
	})
	assert.Equal(t, []string{"CWE-20", "CWE-79"}, rec.Weaknesses)
}

func TestFeedItem(t *testing.T) {
	b := newTestBuilder()
	item := b.FeedItem("https://example.com/feed", intel.RawItem{
		Owner:   "alice",
		URL:     "https://example.com/post",
		Title:   "  Post Title ",
		Content: "Body text.",
	})
	require.Equal(t, "alice", item.Owner)
	assert.Equal(t, "https://example.com/feed", item.FeedURL)
	assert.Equal(t, "Post Title", item.Title)
	assert.Equal(t, testNow, item.Timestamp)
}
