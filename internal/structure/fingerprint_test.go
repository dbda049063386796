package structure_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"studentjobs/collector-service/internal/structure"
)

func fingerprintOf(t *testing.T, page string) string {
	t.Helper()
	root, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	return structure.Fingerprint(root)
}

func TestFingerprint_IgnoresTextContent(t *testing.T) {
	a := fingerprintOf(t, `<html><body><ul class="jobs"><li class="job">Backend Developer</li></ul></body></html>`)
	b := fingerprintOf(t, `<html><body><ul class="jobs"><li class="job">Warehouse Worker</li></ul></body></html>`)
	assert.Equal(t, a, b, "text changes must not move the fingerprint")
}

func TestFingerprint_IgnoresVolatileTags(t *testing.T) {
	a := fingerprintOf(t, `<html><head><script>var x=1</script></head><body><div class="job"></div></body></html>`)
	b := fingerprintOf(t, `<html><head><script>var y=2;trackPageview()</script></head><body><div class="job"></div></body></html>`)
	assert.Equal(t, a, b)
}

func TestFingerprint_SensitiveToClassChanges(t *testing.T) {
	a := fingerprintOf(t, `<html><body><div class="job-card"></div></body></html>`)
	b := fingerprintOf(t, `<html><body><div class="posting-card"></div></body></html>`)
	assert.NotEqual(t, a, b, "renamed classes are a structural change")
}

func TestFingerprint_SensitiveToNewElements(t *testing.T) {
	a := fingerprintOf(t, `<html><body><div class="jobs"><a href="/j/1"></a></div></body></html>`)
	b := fingerprintOf(t, `<html><body><div class="jobs"><span></span><a href="/j/1"></a></div></body></html>`)
	assert.NotEqual(t, a, b)
}

func TestFingerprint_ClassOrderDoesNotMatter(t *testing.T) {
	a := fingerprintOf(t, `<html><body><div class="job card featured"></div></body></html>`)
	b := fingerprintOf(t, `<html><body><div class="featured job card"></div></body></html>`)
	assert.Equal(t, a, b)
}
