package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/src/x.py b/src/x.py
index 1111111..2222222 100644
--- a/src/x.py
+++ b/src/x.py
@@ -3 +3 @@ def f():
-    return 1
+    return 2
@@ -10,2 +9,0 @@
--- not a header
-gone
@@ -20,0 +19,3 @@
+a
+b
+c
diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/new.txt
@@ -0,0 +1 @@
+hello
diff --git a/old name.txt b/docs/new name.txt
similarity index 90%
rename from old name.txt
rename to docs/new name.txt
--- a/old name.txt
+++ b/docs/new name.txt
@@ -1,2 +1,2 @@
-x
+y
 z
diff --git a/dead.go b/dead.go
deleted file mode 100644
--- a/dead.go
+++ /dev/null
@@ -1,4 +0,0 @@
-package dead
-
-func A() {}
-func B() {}
`

func TestParsePatches(t *testing.T) {
	patches := ParsePatches(sampleDiff)
	require.Len(t, patches, 4)

	x := patches[0]
	assert.Equal(t, "src/x.py", x.OldPath)
	assert.Equal(t, "src/x.py", x.Path())
	assert.False(t, x.Added())
	require.Len(t, x.Hunks, 3)
	assert.Equal(t, Hunk{OldStart: 3, OldCount: 1, NewStart: 3, NewCount: 1}, x.Hunks[0], "omitted counts are 1")
	assert.Equal(t, []LineRange{{3, 3}, {10, 11}}, x.DeletedRanges(), "pure insertion contributes nothing")
	assert.Contains(t, x.Body, "--- not a header", "body lines are never parsed as headers")
	assert.True(t, len(x.Body) > 0 && x.Body[:2] == "@@")

	added := patches[1]
	assert.True(t, added.Added())
	assert.Equal(t, "new.txt", added.Path())
	assert.Empty(t, added.DeletedRanges())

	renamed := patches[2]
	assert.Equal(t, "old name.txt", renamed.OldPath)
	assert.Equal(t, "docs/new name.txt", renamed.NewPath)
	assert.Equal(t, []LineRange{{1, 2}}, renamed.DeletedRanges())

	deleted := patches[3]
	assert.Equal(t, "", deleted.NewPath)
	assert.Equal(t, "dead.go", deleted.Path())
	assert.Equal(t, []LineRange{{1, 4}}, deleted.DeletedRanges())
}

func TestParseHunkHeader(t *testing.T) {
	h, ok := parseHunkHeader("@@ -7,0 +8,2 @@ func main() {")
	require.True(t, ok)
	assert.Equal(t, Hunk{OldStart: 7, OldCount: 0, NewStart: 8, NewCount: 2}, h)

	_, ok = parseHunkHeader("@@ garbage @@")
	assert.False(t, ok)
}

func TestParseDiffGitHeader(t *testing.T) {
	oldPath, newPath := parseDiffGitHeader("diff --git a/my file.txt b/my file.txt")
	assert.Equal(t, "my file.txt", oldPath)
	assert.Equal(t, "my file.txt", newPath)

	oldPath, newPath = parseDiffGitHeader("diff --cc merged.go")
	assert.Empty(t, oldPath)
	assert.Empty(t, newPath)
}
