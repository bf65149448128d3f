package crawl

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xrdtools/catalog/internal/directory"
	"github.com/xrdtools/catalog/internal/hash/sha256"
	"github.com/xrdtools/catalog/internal/xroad"
)

var crawlClient = []string{"EE", "GOV", "70000001", "catalog"}

func testSubsystem(code string) directory.Subsystem {
	return directory.Subsystem{
		XRoadInstance: "EE", MemberClass: "COM", MemberCode: "12345678", SubsystemCode: code,
	}
}

func testMethod(sub directory.Subsystem, service, version string) xroad.Method {
	return xroad.Method{
		XRoadInstance:  sub.XRoadInstance,
		MemberClass:    sub.MemberClass,
		MemberCode:     sub.MemberCode,
		SubsystemCode:  sub.SubsystemCode,
		ServiceCode:    service,
		ServiceVersion: version,
	}
}

func singleOperationWSDL(name string) string {
	return `<?xml version="1.0"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
        xmlns:xrd="http://x-road.eu/xsd/xroad.xsd">
    <wsdl:binding name="b">
        <wsdl:operation name="` + name + `">
            <xrd:version>v1</xrd:version>
        </wsdl:operation>
    </wsdl:binding>
</wsdl:definitions>`
}

// fakeClient serves canned protocol responses keyed by identifier.
type fakeClient struct {
	mu         sync.Mutex
	methods    map[string][]xroad.Method
	methodsErr map[string]error
	rest       map[string][]xroad.RESTMethod
	restErr    map[string]error
	wsdl       map[string]string
	wsdlErr    map[string]error
	openapi    map[string]string
	wsdlCalls  []string
}

func (f *fakeClient) Methods(_ context.Context, _ string, _, producer []string, _ string) ([]xroad.Method, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := xroad.Identifier(producer)
	if err := f.methodsErr[key]; err != nil {
		return nil, err
	}
	return f.methods[key], nil
}

func (f *fakeClient) MethodsRest(_ context.Context, _ string, _, producer []string, _ string) ([]xroad.RESTMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := xroad.Identifier(producer)
	if err := f.restErr[key]; err != nil {
		return nil, err
	}
	return f.rest[key], nil
}

func (f *fakeClient) WSDL(_ context.Context, _ string, _ []string, service xroad.Method) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := service.String()
	f.wsdlCalls = append(f.wsdlCalls, key)
	if err := f.wsdlErr[key]; err != nil {
		return "", err
	}
	return f.wsdl[key], nil
}

func (f *fakeClient) OpenAPI(_ context.Context, _ string, _ []string, service xroad.RESTMethod) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openapi[service.String()], nil
}

func (f *fakeClient) wsdlCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.wsdlCalls)
}

func newTestEngine(t *testing.T, client Client, cfg Config) *Engine {
	t.Helper()
	if cfg.ServerURL == "" {
		cfg.ServerURL = "ss.example.org"
	}
	if cfg.Client == nil {
		cfg.Client = crawlClient
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	engine, err := NewEngine(client, sha256.New(), cfg, nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	hasher := sha256.New()

	_, err := NewEngine(client, hasher, Config{
		Client: []string{"EE", "GOV"}, OutputDir: "out",
	}, nil)
	require.Error(t, err)

	_, err = NewEngine(client, hasher, Config{
		Client: crawlClient,
	}, nil)
	require.Error(t, err)

	_, err = NewEngine(client, hasher, Config{
		Client: crawlClient, OutputDir: "out", Discovery: "deleteMethods",
	}, nil)
	require.Error(t, err)
}

func TestRun_CollectsEveryResult(t *testing.T) {
	t.Parallel()

	healthy := testSubsystem("healthy")
	broken := testSubsystem("broken")
	empty := testSubsystem("empty")
	method := testMethod(healthy, "getRandom", "v1")

	client := &fakeClient{
		methods: map[string][]xroad.Method{
			healthy.String(): {method},
			empty.String():   nil,
		},
		methodsErr: map[string]error{
			broken.String(): &xroad.FaultError{Fault: "Unknown member"},
		},
		wsdl: map[string]string{
			method.String(): singleOperationWSDL("getRandom"),
		},
	}

	engine := newTestEngine(t, client, Config{})
	results, err := engine.Run(context.Background(), []directory.Subsystem{healthy, broken, empty})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, StatusOK, results[healthy.String()].Status)
	require.Equal(t, StatusError, results[broken.String()].Status)
	require.Empty(t, results[broken.String()].Methods)
	require.Equal(t, StatusEmpty, results[empty.String()].Status)
}

func TestRun_IndexesDocumentOperations(t *testing.T) {
	t.Parallel()

	sub := testSubsystem("demo")
	method := testMethod(sub, "getRandom", "v1")
	doc := `<?xml version="1.0"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
        xmlns:xrd="http://x-road.eu/xsd/xroad.xsd">
    <wsdl:binding name="b">
        <wsdl:operation name="getRandom"><xrd:version>v1</xrd:version></wsdl:operation>
        <wsdl:operation name="helloService"><xrd:version>v1</xrd:version></wsdl:operation>
    </wsdl:binding>
</wsdl:definitions>`

	outDir := t.TempDir()
	client := &fakeClient{
		methods: map[string][]xroad.Method{sub.String(): {method}},
		wsdl:    map[string]string{method.String(): doc},
	}

	engine := newTestEngine(t, client, Config{OutputDir: outDir})
	results, err := engine.Run(context.Background(), []directory.Subsystem{sub})
	require.NoError(t, err)

	res := results[sub.String()]
	require.Equal(t, StatusOK, res.Status)
	// Every operation of the stored document is indexed, not just the
	// method that led to it.
	require.Equal(t, MethodEntry{Status: MethodOK, Path: sub.String() + "/0.wsdl"},
		res.Methods[sub.String()+"/getRandom/v1"])
	require.Equal(t, MethodEntry{Status: MethodOK, Path: sub.String() + "/0.wsdl"},
		res.Methods[sub.String()+"/helloService/v1"])

	stored, err := os.ReadFile(filepath.Join(outDir, sub.String(), "0.wsdl"))
	require.NoError(t, err)
	require.Equal(t, doc, string(stored))
}

func TestRun_TimeoutSkipsRestOfSubsystem(t *testing.T) {
	t.Parallel()

	sub := testSubsystem("slow")
	first := testMethod(sub, "aService", "v1")
	second := testMethod(sub, "bService", "v1")
	third := testMethod(sub, "cService", "v1")

	client := &fakeClient{
		methods: map[string][]xroad.Method{
			sub.String(): {third, first, second}, // deliberately unsorted
		},
		wsdlErr: map[string]error{
			first.String(): &xroad.TimeoutError{},
		},
	}

	engine := newTestEngine(t, client, Config{Workers: 1})
	results, err := engine.Run(context.Background(), []directory.Subsystem{sub})
	require.NoError(t, err)

	res := results[sub.String()]
	require.Equal(t, MethodEntry{Status: MethodTimeout}, res.Methods[first.String()])
	require.Equal(t, MethodEntry{Status: MethodSkipped}, res.Methods[second.String()])
	require.Equal(t, MethodEntry{Status: MethodSkipped}, res.Methods[third.String()])
	// Only the first, timing-out method hit the network.
	require.Equal(t, 1, client.wsdlCallCount())
}

func TestRun_FetchFailureIsPerMethod(t *testing.T) {
	t.Parallel()

	sub := testSubsystem("flaky")
	bad := testMethod(sub, "badService", "v1")
	good := testMethod(sub, "goodService", "v1")

	client := &fakeClient{
		methods: map[string][]xroad.Method{sub.String(): {bad, good}},
		wsdl: map[string]string{
			good.String(): singleOperationWSDL("goodService"),
		},
		wsdlErr: map[string]error{
			bad.String(): &xroad.FaultError{Fault: "boom"},
		},
	}

	engine := newTestEngine(t, client, Config{Workers: 1})
	results, err := engine.Run(context.Background(), []directory.Subsystem{sub})
	require.NoError(t, err)

	res := results[sub.String()]
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, MethodEntry{Status: MethodError}, res.Methods[bad.String()])
	require.Equal(t, MethodOK, res.Methods[good.String()].Status)
}

func TestRun_SharedDocumentStoredOnce(t *testing.T) {
	t.Parallel()

	sub := testSubsystem("dup")
	first := testMethod(sub, "aService", "v1")
	second := testMethod(sub, "bService", "v1")
	doc := singleOperationWSDL("aService")

	outDir := t.TempDir()
	client := &fakeClient{
		methods: map[string][]xroad.Method{sub.String(): {first, second}},
		wsdl: map[string]string{
			first.String():  doc,
			second.String(): doc,
		},
	}

	engine := newTestEngine(t, client, Config{OutputDir: outDir, Workers: 1})
	_, err := engine.Run(context.Background(), []directory.Subsystem{sub})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(outDir, sub.String()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRun_OpenAPIDescriptions(t *testing.T) {
	t.Parallel()

	sub := testSubsystem("restful")
	pets := xroad.RESTMethod{
		XRoadInstance: sub.XRoadInstance, MemberClass: sub.MemberClass,
		MemberCode: sub.MemberCode, SubsystemCode: sub.SubsystemCode, ServiceCode: "pets",
	}
	bare := xroad.RESTMethod{
		XRoadInstance: sub.XRoadInstance, MemberClass: sub.MemberClass,
		MemberCode: sub.MemberCode, SubsystemCode: sub.SubsystemCode, ServiceCode: "bare",
	}

	outDir := t.TempDir()
	client := &fakeClient{
		methods: map[string][]xroad.Method{sub.String(): nil},
		rest:    map[string][]xroad.RESTMethod{sub.String(): {pets, bare}},
		openapi: map[string]string{
			pets.String(): `{"openapi":"3.0.0","paths":{"/pets":{"get":{"summary":"List"}}}}`,
			bare.String(): `{"openapi":"3.0.0"}`,
		},
	}

	engine := newTestEngine(t, client, Config{OutputDir: outDir, Workers: 1, FetchOpenAPI: true})
	results, err := engine.Run(context.Background(), []directory.Subsystem{sub})
	require.NoError(t, err)

	res := results[sub.String()]
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, MethodEntry{Status: MethodOK, Path: sub.String() + "/0.json"},
		res.Methods[pets.String()])
	// A description with no extractable endpoints is recorded as an error.
	require.Equal(t, MethodEntry{Status: MethodError}, res.Methods[bare.String()])
}

func TestQueue_CloseEndsDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), testSubsystem("one")))
	q.Close()
	q.Close() // idempotent

	sub, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	require.Equal(t, "one", sub.SubsystemCode)

	_, ok = q.Dequeue(context.Background())
	require.False(t, ok)
}

func TestQueue_ContextCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, q.Enqueue(ctx, testSubsystem("one")))
	_, ok := q.Dequeue(ctx)
	require.False(t, ok)
}
