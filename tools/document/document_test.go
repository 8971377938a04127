package document

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mica "github.com/avelline/mica"
	"github.com/avelline/mica/store/sqlite"
)

func testTool(t *testing.T, importRoot string) (*Tool, mica.Store, context.Context) {
	t.Helper()
	st := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	idea, err := st.CreateIdea(context.Background(), "habit tracker")
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return New(st, importRoot), st, mica.WithIdeaID(context.Background(), idea.ID)
}

func exec(t *testing.T, tool *Tool, ctx context.Context, name, args string) mica.ToolResult {
	t.Helper()
	res, err := tool.Execute(ctx, name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

func TestCreateAndReadDocument(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	res := exec(t, tool, ctx, "create_document", `{"name":"research.md","content":"# Findings\n\nStreaks work."}`)
	if res.Error != "" {
		t.Fatalf("create error: %s", res.Error)
	}

	res = exec(t, tool, ctx, "read_document", `{"name":"research.md"}`)
	if res.Error != "" {
		t.Fatalf("read error: %s", res.Error)
	}
	if !strings.Contains(res.Content, "Streaks work.") {
		t.Errorf("content = %q, want body", res.Content)
	}
}

func TestCreateReplacesByName(t *testing.T) {
	tool, st, ctx := testTool(t, "")

	exec(t, tool, ctx, "create_document", `{"name":"app.html","content":"<html>v1</html>"}`)
	exec(t, tool, ctx, "create_document", `{"name":"app.html","content":"<html>v2</html>"}`)

	docs, err := st.ListDocuments(ctx, mica.IdeaIDFromContext(ctx))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Content != "<html>v2</html>" {
		t.Errorf("content = %q, want v2", docs[0].Content)
	}
	if docs[0].ContentType != "text/html" {
		t.Errorf("content type = %q, want text/html", docs[0].ContentType)
	}
}

func TestReadTruncatesLargeDocument(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	big := strings.Repeat("x", maxReadLen+100)
	args, _ := json.Marshal(map[string]string{"name": "big.md", "content": big})
	exec(t, tool, ctx, "create_document", string(args))

	res := exec(t, tool, ctx, "read_document", `{"name":"big.md"}`)
	if !strings.HasSuffix(res.Content, "\n... (truncated)") {
		t.Error("large document not truncated")
	}
	if len(res.Content) > maxReadLen+30 {
		t.Errorf("truncated content is %d bytes", len(res.Content))
	}
}

func TestUpdateRequiresExisting(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	res := exec(t, tool, ctx, "update_document", `{"name":"missing.md","content":"x"}`)
	if !strings.Contains(res.Error, "use create_document") {
		t.Errorf("error = %q, want create_document hint", res.Error)
	}

	exec(t, tool, ctx, "create_document", `{"name":"notes.md","content":"v1"}`)
	res = exec(t, tool, ctx, "update_document", `{"name":"notes.md","content":"v2"}`)
	if res.Error != "" {
		t.Fatalf("update error: %s", res.Error)
	}
	res = exec(t, tool, ctx, "read_document", `{"name":"notes.md"}`)
	if res.Content != "v2" {
		t.Errorf("content = %q, want v2", res.Content)
	}
}

func TestListDocuments(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	res := exec(t, tool, ctx, "list_documents", `{}`)
	if res.Content != "No documents yet." {
		t.Errorf("content = %q, want empty message", res.Content)
	}

	exec(t, tool, ctx, "create_document", `{"name":"a.md","content":"aa"}`)
	exec(t, tool, ctx, "create_document", `{"name":"b.js","content":"bb"}`)

	res = exec(t, tool, ctx, "list_documents", `{}`)
	if !strings.Contains(res.Content, "a.md (text/markdown, 2 bytes)") {
		t.Errorf("content = %q, want a.md entry", res.Content)
	}
	if !strings.Contains(res.Content, "b.js (text/javascript, 2 bytes)") {
		t.Errorf("content = %q, want b.js entry", res.Content)
	}
}

func TestImportDocument(t *testing.T) {
	root := t.TempDir()
	tool, st, ctx := testTool(t, root)

	path := filepath.Join(root, "paper.md")
	if err := os.WriteFile(path, []byte("# Paper\n\nKey claim."), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	res := exec(t, tool, ctx, "import_document", `{"path":"paper.md"}`)
	if res.Error != "" {
		t.Fatalf("import error: %s", res.Error)
	}

	d, err := st.GetDocument(ctx, mica.IdeaIDFromContext(ctx), "paper.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.ContentType != "text/markdown" {
		t.Errorf("content type = %q, want text/markdown", d.ContentType)
	}
	if !strings.Contains(d.Content, "Key claim.") {
		t.Errorf("content = %q, want file body", d.Content)
	}
}

func TestImportRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	tool, _, ctx := testTool(t, root)

	res := exec(t, tool, ctx, "import_document", `{"path":"../outside.txt"}`)
	if !strings.Contains(res.Error, "traversal") {
		t.Errorf("error = %q, want traversal rejection", res.Error)
	}

	abs, _ := json.Marshal(map[string]string{"path": filepath.Join(root, "f.txt")})
	res = exec(t, tool, ctx, "import_document", string(abs))
	if !strings.Contains(res.Error, "absolute") {
		t.Errorf("error = %q, want absolute rejection", res.Error)
	}
}

func TestImportDisabledWithoutRoot(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	res := exec(t, tool, ctx, "import_document", `{"path":"x.md"}`)
	if res.Error != "no import directory configured" {
		t.Errorf("error = %q, want disabled message", res.Error)
	}
}

func TestDocumentToolValidation(t *testing.T) {
	tool, _, ctx := testTool(t, "")

	for _, name := range []string{"create_document", "read_document", "update_document"} {
		res := exec(t, tool, ctx, name, `{"content":"x"}`)
		if res.Error != "name is required" {
			t.Errorf("%s error = %q, want name required", name, res.Error)
		}
	}

	res, err := tool.Execute(context.Background(), "list_documents", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Error != "no idea in scope" {
		t.Errorf("error = %q, want no idea in scope", res.Error)
	}

	res = exec(t, tool, ctx, "rename_document", `{}`)
	if !strings.Contains(res.Error, "unknown document tool") {
		t.Errorf("error = %q, want unknown tool", res.Error)
	}
}
