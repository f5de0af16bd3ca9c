package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/catalog"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
	"github.com/alejandrobarreracorrea/cloudscan/pkg/model"
)

type invocation struct {
	operation string
	params    map[string]any
}

type fakeClient struct {
	responses  map[string]map[string]any
	errs       map[string]error
	paginators map[string]*fakePaginator
	calls      []invocation

	// invoke overrides the default table-driven behavior when set.
	invoke func(ctx context.Context, operation string, params map[string]any) (map[string]any, error)
}

func (c *fakeClient) Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	c.calls = append(c.calls, invocation{operation: operation, params: params})
	if c.invoke != nil {
		return c.invoke(ctx, operation, params)
	}
	if err, ok := c.errs[operation]; ok {
		return nil, err
	}
	if out, ok := c.responses[operation]; ok {
		return out, nil
	}
	return map[string]any{}, nil
}

func (c *fakeClient) Paginator(operation string) (Paginator, bool) {
	p, ok := c.paginators[operation]
	return p, ok
}

type fakePaginator struct {
	pages []map[string]any
	pos   int
}

func (p *fakePaginator) HasMorePages() bool { return p.pos < len(p.pages) }

func (p *fakePaginator) NextPage(ctx context.Context) (map[string]any, error) {
	page := p.pages[p.pos]
	p.pos++
	return page, nil
}

type fakeClientFactory struct {
	client *fakeClient
	err    error
}

func (f *fakeClientFactory) NewClient(namespace, region string) (Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func newTestExecutor(t *testing.T, client *fakeClient, cfg Config) *Executor {
	t.Helper()
	factory := NewFactory(&fakeClientFactory{client: client}, cfg, zerolog.Nop())
	exec := factory.ForTask("s3", "us-east-1").(*Executor)
	exec.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return exec
}

func safeOp(name string) catalog.OperationDescriptor {
	return catalog.OperationDescriptor{Name: name, SafeToCall: true, Classification: catalog.ClassificationRead}
}

func TestExecuteDirect(t *testing.T) {
	client := &fakeClient{responses: map[string]map[string]any{
		"ListBuckets": {"Items": []any{map[string]any{"Name": "alpha"}}},
	}}
	exec := newTestExecutor(t, client, Config{})

	env, executed := exec.Execute(context.Background(), safeOp("ListBuckets"))
	if !executed {
		t.Fatal("expected operation to be executed")
	}
	if !env.Success {
		t.Fatalf("expected success, got error %+v", env.Error)
	}
	if env.Namespace != "s3" || env.Region != "us-east-1" || env.Operation != "ListBuckets" {
		t.Errorf("envelope identity wrong: %+v", env)
	}
	if len(exec.listResults["ListBuckets"]) != 1 {
		t.Errorf("list result not cached: %+v", exec.listResults)
	}
}

func TestExecuteSkipsMultiParamByDefault(t *testing.T) {
	client := &fakeClient{}
	exec := newTestExecutor(t, client, Config{})

	op := catalog.OperationDescriptor{
		Name: "GetObjectTagging",
		RequiredParams: []model.Member{
			{Name: "Bucket", Required: true},
			{Name: "Key", Required: true},
		},
	}
	env, executed := exec.Execute(context.Background(), op)
	if executed || env != nil {
		t.Fatalf("expected silent skip, got executed=%v env=%+v", executed, env)
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no calls, got %d", len(client.calls))
	}
}

func TestExecuteZeroArgMultiOptIn(t *testing.T) {
	client := &fakeClient{responses: map[string]map[string]any{
		"DescribeThings": {"ok": true},
	}}
	exec := newTestExecutor(t, client, Config{TryZeroArgMulti: true})

	op := catalog.OperationDescriptor{
		Name: "DescribeThings",
		RequiredParams: []model.Member{
			{Name: "A", Required: true},
			{Name: "B", Required: true},
		},
	}
	env, executed := exec.Execute(context.Background(), op)
	if !executed || env == nil || !env.Success {
		t.Fatalf("expected best-effort success, got executed=%v env=%+v", executed, env)
	}
	if client.calls[0].params != nil {
		t.Errorf("expected zero-argument call, got params %+v", client.calls[0].params)
	}
}

func TestExecuteZeroArgMultiFailureIsSilent(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		"DescribeThings": engine.NewUnexpectedError("missing required A", nil),
	}}
	exec := newTestExecutor(t, client, Config{TryZeroArgMulti: true})

	op := catalog.OperationDescriptor{
		Name: "DescribeThings",
		RequiredParams: []model.Member{
			{Name: "A", Required: true},
			{Name: "B", Required: true},
		},
	}
	env, executed := exec.Execute(context.Background(), op)
	if executed || env != nil {
		t.Fatalf("expected silent skip on rejection, got executed=%v env=%+v", executed, env)
	}
}

func TestInferenceFromCachedList(t *testing.T) {
	client := &fakeClient{responses: map[string]map[string]any{
		"ListQueues": {"Items": []any{
			map[string]any{"QueueUrl": "https://q/one"},
			map[string]any{"QueueUrl": "https://q/two"},
		}},
		"GetQueueAttributes": {"Attributes": map[string]any{}},
	}}
	exec := newTestExecutor(t, client, Config{})

	if _, ok := exec.Execute(context.Background(), safeOp("ListQueues")); !ok {
		t.Fatal("listing call failed")
	}

	op := catalog.OperationDescriptor{
		Name:           "GetQueueAttributes",
		RequiredParams: []model.Member{{Name: "QueueUrl", Required: true}},
	}
	env, executed := exec.Execute(context.Background(), op)
	if !executed || !env.Success {
		t.Fatalf("expected inferred execution, got executed=%v env=%+v", executed, env)
	}
	values := env.InferredParams["QueueUrl"]
	if len(values) != 2 || values[0] != "https://q/one" || values[1] != "https://q/two" {
		t.Errorf("inferred values wrong: %v", values)
	}
	results, ok := env.Payload["results"].([]any)
	if !ok || len(results) != 2 {
		t.Errorf("expected aggregated results, got %+v", env.Payload)
	}
}

func TestInferenceVariantChain(t *testing.T) {
	cases := []struct {
		name string
		item map[string]any
		want string
	}{
		{"exact", map[string]any{"ClusterName": "c1"}, "c1"},
		{"id suffix", map[string]any{"ClusterNameId": "c2"}, "c2"},
		{"snake id", map[string]any{"ClusterName_id": "c3"}, "c3"},
		{"bare Id", map[string]any{"Id": "c4"}, "c4"},
		{"bare arn", map[string]any{"arn": "arn:aws:x"}, "arn:aws:x"},
		// Decoded JSON carries numeric identifiers as float64.
		{"numeric id", map[string]any{"Id": float64(42)}, "42"},
		{"fractional id", map[string]any{"Id": float64(7.5)}, "7.5"},
		{"no match", map[string]any{"Other": "x"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := newTestExecutor(t, &fakeClient{}, Config{})
			exec.cacheListResult("ListClusters", map[string]any{"Items": []any{tc.item}})

			values := exec.inferValues("ClusterName")
			switch {
			case tc.want == "" && len(values) != 0:
				t.Errorf("expected no values, got %v", values)
			case tc.want != "" && (len(values) != 1 || values[0] != tc.want):
				t.Errorf("expected [%s], got %v", tc.want, values)
			}
		})
	}
}

func TestInferenceFollowupBound(t *testing.T) {
	items := make([]any, 10)
	for i := range items {
		items[i] = map[string]any{"Id": string(rune('a' + i))}
	}
	exec := newTestExecutor(t, &fakeClient{}, Config{MaxFollowups: 3})
	exec.cacheListResult("ListThings", map[string]any{"Items": items})

	values := exec.inferValues("ThingId")
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d: %v", len(values), values)
	}
}

func TestInferenceDeduplicates(t *testing.T) {
	exec := newTestExecutor(t, &fakeClient{}, Config{})
	exec.cacheListResult("ListThings", map[string]any{"Items": []any{
		map[string]any{"Id": "same"},
		map[string]any{"Id": "same"},
		map[string]any{"Id": "other"},
	}})

	values := exec.inferValues("ThingId")
	if len(values) != 2 {
		t.Fatalf("expected deduplicated values, got %v", values)
	}
}

func TestInferenceWithNoCandidatesSkips(t *testing.T) {
	exec := newTestExecutor(t, &fakeClient{}, Config{})

	op := catalog.OperationDescriptor{
		Name:           "GetThing",
		RequiredParams: []model.Member{{Name: "ThingId", Required: true}},
	}
	env, executed := exec.Execute(context.Background(), op)
	if executed || env != nil {
		t.Fatalf("expected skip without candidates, got executed=%v env=%+v", executed, env)
	}
}

func TestInferenceAllFollowupsFailSkips(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		"GetThing": engine.NewUnexpectedError("no such thing", nil),
	}}
	exec := newTestExecutor(t, client, Config{})
	exec.cacheListResult("ListThings", map[string]any{"Items": []any{
		map[string]any{"Id": "one"},
		map[string]any{"Id": "two"},
	}})

	op := catalog.OperationDescriptor{
		Name:           "GetThing",
		RequiredParams: []model.Member{{Name: "ThingId", Required: true}},
	}
	env, executed := exec.Execute(context.Background(), op)
	if executed || env != nil {
		t.Fatalf("expected skip when every followup fails, got executed=%v env=%+v", executed, env)
	}
	if len(client.calls) != 2 {
		t.Errorf("expected both followups attempted, got %d calls", len(client.calls))
	}
}

func TestHostedZoneIdentifierNormalization(t *testing.T) {
	factory := NewFactory(&fakeClientFactory{client: &fakeClient{}}, Config{}, zerolog.Nop())
	exec := factory.ForTask("route53", "us-east-1").(*Executor)
	exec.cacheListResult("ListHostedZones", map[string]any{"HostedZones": []any{
		map[string]any{"Id": "/hostedzone/Z0001"},
	}})

	values := exec.inferValues("HostedZoneId")
	if len(values) != 1 || values[0] != "Z0001" {
		t.Fatalf("expected trailing segment Z0001, got %v", values)
	}
}

func TestRetryOnlyThrottling(t *testing.T) {
	t.Run("throttled retried with backoff", func(t *testing.T) {
		attempts := 0
		client := &fakeClient{invoke: func(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
			attempts++
			if attempts < 3 {
				return nil, engine.NewThrottledError("slow down", nil)
			}
			return map[string]any{"ok": true}, nil
		}}
		var slept []time.Duration
		exec := newTestExecutor(t, client, Config{MaxRetries: 2})
		exec.sleep = func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}

		env, _ := exec.Execute(context.Background(), safeOp("GetThing"))
		if !env.Success {
			t.Fatalf("expected success after retries, got %+v", env.Error)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
		if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
			t.Errorf("expected exponential backoff [1s 2s], got %v", slept)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		attempts := 0
		client := &fakeClient{invoke: func(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
			attempts++
			return nil, engine.NewThrottledError("slow down", nil).WithCode("Throttling")
		}}
		exec := newTestExecutor(t, client, Config{MaxRetries: 2})

		env, _ := exec.Execute(context.Background(), safeOp("GetThing"))
		if env.Success {
			t.Fatal("expected failure after exhausted retries")
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
		if env.Error.Code != "Throttling" {
			t.Errorf("expected Throttling code, got %s", env.Error.Code)
		}
	})

	t.Run("connectivity fails fast", func(t *testing.T) {
		attempts := 0
		client := &fakeClient{invoke: func(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
			attempts++
			return nil, engine.NewConnectivityError("could not connect", nil)
		}}
		exec := newTestExecutor(t, client, Config{MaxRetries: 2})

		env, _ := exec.Execute(context.Background(), safeOp("GetThing"))
		if env.Success {
			t.Fatal("expected failure")
		}
		if attempts != 1 {
			t.Errorf("expected single attempt, got %d", attempts)
		}
		if !env.NotAvailable {
			t.Error("connectivity failure should mark the endpoint not available")
		}
	})
}

func TestOperationBudget(t *testing.T) {
	client := &fakeClient{responses: map[string]map[string]any{"GetThing": {"ok": true}}}
	exec := newTestExecutor(t, client, Config{OperationTimeout: time.Nanosecond})
	time.Sleep(time.Millisecond)

	// The budget check precedes dispatch, so the first attempt is already
	// over budget with a nanosecond allowance.
	env, _ := exec.Execute(context.Background(), safeOp("GetThing"))
	if env.Success {
		t.Fatal("expected timeout failure")
	}
	if !env.NotAvailable {
		t.Error("budget overrun should mark the result not available")
	}
	if env.Error.Code != "Timeout" {
		t.Errorf("expected Timeout code, got %s", env.Error.Code)
	}
}

func TestPagination(t *testing.T) {
	t.Run("paginator driven to limit", func(t *testing.T) {
		pages := make([]map[string]any, 6)
		for i := range pages {
			pages[i] = map[string]any{"page": i}
		}
		client := &fakeClient{
			responses:  map[string]map[string]any{"ListThings": {"page": 0}},
			paginators: map[string]*fakePaginator{"ListThings": {pages: pages}},
		}
		exec := newTestExecutor(t, client, Config{MaxPages: 4})

		op := safeOp("ListThings")
		op.Paginated = true
		env, _ := exec.Execute(context.Background(), op)
		if env.Payload["pageCount"] != 4 {
			t.Errorf("expected 4 pages, got %v", env.Payload["pageCount"])
		}
	})

	t.Run("catalog operation clamped to one page", func(t *testing.T) {
		client := &fakeClient{
			responses:  map[string]map[string]any{"GetProducts": {"PriceList": []any{}}},
			paginators: map[string]*fakePaginator{"GetProducts": {pages: []map[string]any{{"p": 1}, {"p": 2}}}},
		}
		exec := newTestExecutor(t, client, Config{
			MaxPages:          100,
			CatalogOperations: map[string]struct{}{"GetProducts": {}},
		})

		op := safeOp("GetProducts")
		op.Paginated = true
		env, _ := exec.Execute(context.Background(), op)
		if env.Payload["pageCount"] != 1 {
			t.Errorf("expected single page for catalog operation, got %v", env.Payload["pageCount"])
		}
	})

	t.Run("no paginator keeps first page", func(t *testing.T) {
		client := &fakeClient{responses: map[string]map[string]any{"ListThings": {"Items": []any{}}}}
		exec := newTestExecutor(t, client, Config{MaxPages: 100})

		op := safeOp("ListThings")
		op.Paginated = true
		env, _ := exec.Execute(context.Background(), op)
		if env.Payload["pageCount"] != 1 {
			t.Errorf("expected single page, got %v", env.Payload["pageCount"])
		}
	})
}

func TestClientCreationFailureSticks(t *testing.T) {
	factory := NewFactory(&fakeClientFactory{err: engine.NewConnectivityError("no endpoint", nil)}, Config{}, zerolog.Nop())
	exec := factory.ForTask("s3", "mars-central-1").(*Executor)

	env, executed := exec.Execute(context.Background(), safeOp("ListBuckets"))
	if !executed {
		t.Fatal("client failure should still produce an envelope")
	}
	if env.Success || !env.NotAvailable {
		t.Fatalf("expected not-available failure, got %+v", env)
	}
	if _, err := exec.getClient(); err == nil {
		t.Error("creation failure should be cached")
	}
}

func TestFlattenItems(t *testing.T) {
	t.Run("recognized collection field", func(t *testing.T) {
		items := flattenItems(map[string]any{"Items": []any{
			map[string]any{"Id": "a"},
			map[string]any{"Id": "b"},
		}})
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
	})

	t.Run("paginated aggregate", func(t *testing.T) {
		items := flattenItems(map[string]any{
			"pageCount": 2,
			"pages": []any{
				map[string]any{"Items": []any{map[string]any{"Id": "a"}}},
				map[string]any{"Items": []any{map[string]any{"Id": "b"}}},
			},
		})
		if len(items) != 2 {
			t.Fatalf("expected items from both pages, got %d", len(items))
		}
	})

	t.Run("page without collection cached whole", func(t *testing.T) {
		items := flattenItems(map[string]any{"QueueUrl": "https://q/one"})
		if len(items) != 1 || items[0]["QueueUrl"] != "https://q/one" {
			t.Fatalf("expected page-as-item fallback, got %+v", items)
		}
	})
}
