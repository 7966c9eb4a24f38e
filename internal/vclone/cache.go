package vclone

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-voice-clone/internal/device"
	"github.com/example/go-voice-clone/internal/engine"
)

// RuntimeInfo records the effective runtime a model instance was loaded
// with. Attention may differ from the first attempt when the CUDA
// fallback kicked in.
type RuntimeInfo struct {
	Device    string `json:"device"`
	Precision string `json:"dtype"`
	Attention string `json:"attn"`
}

func (r RuntimeInfo) String() string {
	return fmt.Sprintf("device=%s attn=%s dtype=%s", r.Device, r.Attention, r.Precision)
}

type cacheKey struct {
	model  string
	device string
}

type cacheEntry struct {
	gen     engine.Generator
	runtime RuntimeInfo
}

// ModelCache memoizes loaded model instances per (model, concrete
// device) for the process lifetime. Loading takes minutes for the
// larger checkpoints; entries are never evicted, and a failed load is
// never cached, so the next call retries fresh.
type ModelCache struct {
	mu      sync.Mutex
	loader  engine.Loader
	probe   device.Probe
	entries map[cacheKey]cacheEntry
	log     *slog.Logger
}

// NewModelCache builds an empty cache. The cache owns the generators it
// stores; Close releases them all.
func NewModelCache(loader engine.Loader, probe device.Probe, log *slog.Logger) *ModelCache {
	if log == nil {
		log = slog.Default()
	}
	return &ModelCache{
		loader:  loader,
		probe:   probe,
		entries: make(map[cacheKey]cacheEntry),
		log:     log,
	}
}

// Load returns the cached instance for (modelID, dev), loading it on
// first use. dev must be a concrete resolved device, not a token.
// Runtime parameters are derived here, per load, never cached on their
// own. If the first attempt fails on CUDA with the fused attention
// kernel, one retry with the eager kernel is made before giving up;
// other devices fail immediately.
func (c *ModelCache) Load(ctx context.Context, modelID, dev string) (engine.Generator, RuntimeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{model: modelID, device: dev}
	if e, ok := c.entries[key]; ok {
		return e.gen, e.runtime, nil
	}

	params := device.ResolveParams(dev, c.probe)
	spec := engine.LoadSpec{
		Model:     modelID,
		Device:    dev,
		Precision: params.Precision,
		Attention: params.Attention,
	}

	c.log.Info("loading model", slog.String("model", modelID), slog.String("device", dev), slog.String("attn", spec.Attention))

	gen, err := c.loader.Load(ctx, spec)
	if err != nil && device.IsCUDA(dev) && spec.Attention == device.AttnFlash {
		c.log.Warn("fused attention load failed, retrying with eager kernel",
			slog.String("model", modelID), slog.String("error", err.Error()))
		spec.Attention = device.AttnEager
		gen, err = c.loader.Load(ctx, spec)
	}
	if err != nil {
		return nil, RuntimeInfo{}, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	entry := cacheEntry{
		gen: gen,
		runtime: RuntimeInfo{
			Device:    dev,
			Precision: spec.Precision,
			Attention: spec.Attention,
		},
	}
	c.entries[key] = entry

	return entry.gen, entry.runtime, nil
}

// Close releases every cached model instance. Called at process
// teardown; the cache is not usable afterwards.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, e := range c.entries {
		if err := e.gen.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close model %s on %s: %w", key.model, key.device, err)
		}
		delete(c.entries, key)
	}
	return firstErr
}
