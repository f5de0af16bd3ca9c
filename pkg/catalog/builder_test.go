package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
)

type fakeLoader struct {
	services map[string]*model.Service
	err      error
}

func (f *fakeLoader) Namespaces(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(f.services))
	for name := range f.services {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeLoader) Load(ctx context.Context, namespace string) (*model.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	svc, ok := f.services[namespace]
	if !ok {
		return nil, errors.New("no such namespace")
	}
	return svc, nil
}

func TestBuild(t *testing.T) {
	loader := &fakeLoader{services: map[string]*model.Service{
		"s3": {
			Name: "s3",
			Operations: []model.Operation{
				{
					Name:   "ListBuckets",
					Output: []model.Member{{Name: "Buckets", Type: "list"}},
				},
				{
					Name: "GetBucketPolicy",
					Input: []model.Member{
						{Name: "Bucket", Required: true},
					},
				},
				{
					Name: "ListObjectsV2",
					Input: []model.Member{
						{Name: "Bucket", Required: true},
						{Name: "Prefix"},
					},
					Output: []model.Member{
						{Name: "Contents", Type: "list"},
						{Name: "ContinuationToken"},
					},
				},
				{
					Name: "CreateBucket",
					Input: []model.Member{
						{Name: "Bucket", Required: true},
					},
				},
			},
		},
	}}
	b := NewBuilder(loader, nil, zerolog.Nop())

	ops, err := b.Build(context.Background(), "s3")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 read operations, got %d: %+v", len(ops), ops)
	}

	byName := make(map[string]OperationDescriptor)
	for _, op := range ops {
		byName[op.Name] = op
	}
	if _, ok := byName["CreateBucket"]; ok {
		t.Error("write operation must not enter the catalog")
	}

	list := byName["ListBuckets"]
	if !list.SafeToCall {
		t.Error("operation without required input should be safe to call")
	}
	if list.Paginated {
		t.Error("no pagination token present, should not be paginated")
	}

	get := byName["GetBucketPolicy"]
	if get.SafeToCall {
		t.Error("required input should make the operation unsafe for direct call")
	}
	if len(get.RequiredParams) != 1 || get.RequiredParams[0].Name != "Bucket" {
		t.Errorf("required params wrong: %+v", get.RequiredParams)
	}

	objects := byName["ListObjectsV2"]
	if !objects.Paginated {
		t.Error("ContinuationToken in output should mark the operation paginated")
	}
	if len(objects.OptionalParams) != 1 || objects.OptionalParams[0].Name != "Prefix" {
		t.Errorf("optional params wrong: %+v", objects.OptionalParams)
	}
}

func TestBuildDiscoveryOrderPreserved(t *testing.T) {
	loader := &fakeLoader{services: map[string]*model.Service{
		"svc": {
			Name: "svc",
			Operations: []model.Operation{
				{Name: "ListZulu"},
				{Name: "ListAlpha"},
				{Name: "ListMike"},
			},
		},
	}}
	b := NewBuilder(loader, nil, zerolog.Nop())

	ops, err := b.Build(context.Background(), "svc")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ListZulu", "ListAlpha", "ListMike"}
	for i, name := range want {
		if ops[i].Name != name {
			t.Fatalf("discovery order not preserved: got %v", ops)
		}
	}
}

func TestBuildUnknownNamespaceYieldsEmptyCatalog(t *testing.T) {
	b := NewBuilder(&fakeLoader{services: map[string]*model.Service{}}, nil, zerolog.Nop())

	ops, err := b.Build(context.Background(), "nope")
	if err != nil {
		t.Fatalf("missing model must not be an error: %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("expected empty catalog, got %+v", ops)
	}
}

func TestBuildDropsNamelessOperations(t *testing.T) {
	loader := &fakeLoader{services: map[string]*model.Service{
		"svc": {
			Name: "svc",
			Operations: []model.Operation{
				{Name: ""},
				{Name: "ListThings"},
			},
		},
	}}
	b := NewBuilder(loader, nil, zerolog.Nop())

	ops, err := b.Build(context.Background(), "svc")
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Name != "ListThings" {
		t.Errorf("nameless operation should be dropped silently, got %+v", ops)
	}
}
