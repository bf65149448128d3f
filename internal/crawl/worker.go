package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xrdtools/catalog/internal/directory"
	"github.com/xrdtools/catalog/internal/metrics"
	"github.com/xrdtools/catalog/internal/store"
	"github.com/xrdtools/catalog/internal/xroad"
)

// worker drains the queue until it is closed, sending one result per
// subsystem. Cancellation is observed only at the dequeue boundary, so a
// subsystem in flight always runs to completion.
func (e *Engine) worker(ctx context.Context, queue *Queue, results chan<- SubsystemResult) {
	for {
		sub, ok := queue.Dequeue(ctx)
		if !ok {
			return
		}
		metrics.WorkerStarted()
		results <- e.processSubsystem(ctx, sub)
		metrics.WorkerDone()
	}
}

// processSubsystem runs one subsystem through the Queued -> Discovering ->
// Describing -> Done state machine. It never returns an error: every
// failure, including a panic, is downgraded to a recorded status.
func (e *Engine) processSubsystem(ctx context.Context, sub directory.Subsystem) (result SubsystemResult) {
	relPath := xroad.Identifier(sub.Parts())
	result = SubsystemResult{
		Subsystem: sub,
		Status:    StatusError,
		Methods:   make(map[string]MethodEntry),
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("subsystem crawl panicked",
				zap.String("subsystem", relPath), zap.Any("panic", r))
			result.Status = StatusError
			result.Methods = make(map[string]MethodEntry)
		}
		metrics.RecordSubsystem(string(result.Status))
	}()

	docs, err := store.Open(filepath.Join(e.cfg.OutputDir, filepath.FromSlash(relPath)), e.hasher)
	if err != nil {
		e.log.Error("open subsystem store", zap.String("subsystem", relPath), zap.Error(err))
		return result
	}

	start := time.Now()
	methods, err := e.client.Methods(ctx, e.cfg.ServerURL, e.cfg.Client, sub.Parts(), e.cfg.Discovery)
	metrics.ObserveRequest(e.cfg.Discovery, time.Since(start))
	if err != nil {
		e.log.Warn("method discovery failed",
			zap.String("subsystem", relPath), zap.Error(err))
		return result
	}

	skip := false
	for _, method := range sortedUnique(methods) {
		e.describeMethod(ctx, docs, relPath, method, &skip, result.Methods)
	}
	if e.cfg.FetchOpenAPI {
		e.describeRESTMethods(ctx, docs, sub, relPath, &skip, result.Methods)
	}

	if len(result.Methods) > 0 {
		result.Status = StatusOK
	} else {
		result.Status = StatusEmpty
	}
	return result
}

// describeMethod fetches and stores one method's WSDL, honoring the
// subsystem's circuit breaker: after one timeout every remaining method is
// marked skipped without a request.
func (e *Engine) describeMethod(ctx context.Context, docs *store.Store, relPath string, method xroad.Method, skip *bool, index map[string]MethodEntry) {
	key := method.String()
	if _, seen := index[key]; seen {
		// Already indexed through an earlier document in this subsystem.
		return
	}
	if *skip {
		e.log.Debug("skipping method after timeout", zap.String("method", key))
		index[key] = MethodEntry{Status: MethodSkipped}
		metrics.RecordDocument("wsdl", "skipped")
		return
	}

	start := time.Now()
	doc, err := e.client.WSDL(ctx, e.cfg.ServerURL, e.cfg.Client, method)
	metrics.ObserveRequest(xroad.ServiceGetWSDL, time.Since(start))
	if err != nil {
		var timeout *xroad.TimeoutError
		if errors.As(err, &timeout) {
			*skip = true
			e.log.Warn("WSDL query timed out, skipping rest of subsystem",
				zap.String("method", key))
			index[key] = MethodEntry{Status: MethodTimeout}
			metrics.RecordDocument("wsdl", "timeout")
			return
		}
		e.log.Warn("WSDL query failed", zap.String("method", key), zap.Error(err))
		index[key] = MethodEntry{Status: MethodError}
		metrics.RecordDocument("wsdl", "error")
		return
	}

	name, digest, err := e.save(docs, []byte(doc), "wsdl")
	if err != nil {
		e.log.Error("store WSDL", zap.String("method", key), zap.Error(err))
		index[key] = MethodEntry{Status: MethodError}
		metrics.RecordDocument("wsdl", "error")
		return
	}
	storedPath := path.Join(relPath, name)

	ops, err := e.wsdlOperations(digest, doc)
	if err != nil {
		e.log.Warn("WSDL parsing failed", zap.String("method", key), zap.Error(err))
		index[key] = MethodEntry{Status: MethodError}
		metrics.RecordDocument("wsdl", "error")
		return
	}
	// One document commonly describes several operations and versions;
	// each is indexed under its own full identifier.
	for _, op := range ops {
		fullID := xroad.Identifier(append(subParts(method), op.Name, op.Version))
		index[fullID] = MethodEntry{Status: MethodOK, Path: storedPath}
	}
	metrics.RecordDocument("wsdl", "ok")
}

// describeRESTMethods discovers REST services and archives their OpenAPI
// descriptions. Discovery failure is not fatal: many subsystems expose no
// REST listing at all.
func (e *Engine) describeRESTMethods(ctx context.Context, docs *store.Store, sub directory.Subsystem, relPath string, skip *bool, index map[string]MethodEntry) {
	restMethods, err := e.client.MethodsRest(ctx, e.cfg.ServerURL, e.cfg.Client, sub.Parts(), e.cfg.Discovery)
	if err != nil {
		e.log.Debug("REST discovery failed", zap.String("subsystem", relPath), zap.Error(err))
		return
	}
	sort.Slice(restMethods, func(i, j int) bool {
		return restMethods[i].String() < restMethods[j].String()
	})

	for _, method := range restMethods {
		key := method.String()
		if _, seen := index[key]; seen {
			continue
		}
		if *skip {
			index[key] = MethodEntry{Status: MethodSkipped}
			metrics.RecordDocument("openapi", "skipped")
			continue
		}

		start := time.Now()
		doc, err := e.client.OpenAPI(ctx, e.cfg.ServerURL, e.cfg.Client, method)
		metrics.ObserveRequest("getOpenAPI", time.Since(start))
		if err != nil {
			var timeout *xroad.TimeoutError
			if errors.As(err, &timeout) {
				*skip = true
				index[key] = MethodEntry{Status: MethodTimeout}
				metrics.RecordDocument("openapi", "timeout")
				continue
			}
			e.log.Debug("OpenAPI query failed", zap.String("method", key), zap.Error(err))
			index[key] = MethodEntry{Status: MethodError}
			metrics.RecordDocument("openapi", "error")
			continue
		}
		if _, err := xroad.OpenAPIEndpoints(doc); err != nil {
			// A description without endpoints is unusable, not empty.
			index[key] = MethodEntry{Status: MethodError}
			metrics.RecordDocument("openapi", "error")
			continue
		}

		ext := "yaml"
		if json.Valid([]byte(doc)) {
			ext = "json"
		}
		name, _, err := e.save(docs, []byte(doc), ext)
		if err != nil {
			e.log.Error("store OpenAPI description", zap.String("method", key), zap.Error(err))
			index[key] = MethodEntry{Status: MethodError}
			metrics.RecordDocument("openapi", "error")
			continue
		}
		index[key] = MethodEntry{Status: MethodOK, Path: path.Join(relPath, name)}
		metrics.RecordDocument("openapi", "ok")
	}
}

// save hashes content once, stores it and returns the name and digest.
func (e *Engine) save(docs *store.Store, content []byte, ext string) (string, string, error) {
	digest, err := e.hasher.Hash(content)
	if err != nil {
		return "", "", fmt.Errorf("hash document: %w", err)
	}
	name, created, err := docs.SaveDigest(digest, content, ext)
	if err != nil {
		return "", "", err
	}
	if !created {
		metrics.RecordDeduplicated()
	}
	return name, digest, nil
}

// wsdlOperations parses a WSDL, memoizing by content digest so a document
// shared across subsystems is parsed once per run.
func (e *Engine) wsdlOperations(digest, doc string) ([]xroad.WSDLOperation, error) {
	if e.parseCache != nil {
		if ops, ok := e.parseCache.Get(digest); ok {
			return ops, nil
		}
	}
	ops, err := xroad.WSDLOperations(doc)
	if err != nil {
		return nil, err
	}
	if e.parseCache != nil {
		e.parseCache.Add(digest, ops)
	}
	return ops, nil
}

// subParts returns the subsystem part of a method identifier.
func subParts(m xroad.Method) []string {
	return []string{m.XRoadInstance, m.MemberClass, m.MemberCode, m.SubsystemCode}
}

// sortedUnique orders methods by identifier and drops duplicates so
// processing order is stable within a subsystem.
func sortedUnique(methods []xroad.Method) []xroad.Method {
	seen := make(map[string]bool, len(methods))
	out := make([]xroad.Method, 0, len(methods))
	for _, m := range methods {
		key := m.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
