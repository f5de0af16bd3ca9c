package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeModel(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "s3.yaml", `name: s3
operations:
  - name: ListBuckets
    output:
      - name: Buckets
        type: list
  - name: GetBucketPolicy
    input:
      - name: Bucket
        required: true
`)
	writeModel(t, dir, "iam.yaml", `name: iam
global: true
operations:
  - name: ListUsers
`)

	loader := NewFileLoader(dir)

	namespaces, err := loader.Namespaces(context.Background())
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if len(namespaces) != 2 || namespaces[0] != "iam" || namespaces[1] != "s3" {
		t.Fatalf("expected sorted namespaces [iam s3], got %v", namespaces)
	}

	svc, err := loader.Load(context.Background(), "s3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if svc.Global {
		t.Error("s3 model should not be global")
	}
	if len(svc.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(svc.Operations))
	}

	op := svc.Operations[1]
	if got := op.RequiredInput(); len(got) != 1 || got[0].Name != "Bucket" {
		t.Errorf("RequiredInput wrong: %+v", got)
	}

	global, err := loader.Load(context.Background(), "iam")
	if err != nil {
		t.Fatal(err)
	}
	if !global.Global {
		t.Error("iam model should be global")
	}
}

func TestFileLoaderCachesModels(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "s3.yaml", "name: s3\noperations: []\n")

	loader := NewFileLoader(dir)
	first, err := loader.Load(context.Background(), "s3")
	if err != nil {
		t.Fatal(err)
	}

	// Removing the file must not affect subsequent loads.
	if err := os.Remove(filepath.Join(dir, "s3.yaml")); err != nil {
		t.Fatal(err)
	}
	second, err := loader.Load(context.Background(), "s3")
	if err != nil {
		t.Fatalf("cached load failed: %v", err)
	}
	if first != second {
		t.Error("expected the cached instance")
	}
}

func TestFileLoaderMissingNamespace(t *testing.T) {
	loader := NewFileLoader(t.TempDir())
	if _, err := loader.Load(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestFileLoaderNameMismatch(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "s3.yaml", "name: sqs\noperations: []\n")

	loader := NewFileLoader(dir)
	if _, err := loader.Load(context.Background(), "s3"); err == nil {
		t.Fatal("expected error for mismatched model name")
	}
}

func TestOperationInputSplit(t *testing.T) {
	op := Operation{
		Name: "GetThing",
		Input: []Member{
			{Name: "Id", Required: true},
			{Name: "Verbose"},
			{Name: "Owner", Required: true},
		},
	}
	if got := op.RequiredInput(); len(got) != 2 {
		t.Errorf("RequiredInput wrong: %+v", got)
	}
	if got := op.OptionalInput(); len(got) != 1 || got[0].Name != "Verbose" {
		t.Errorf("OptionalInput wrong: %+v", got)
	}
}
