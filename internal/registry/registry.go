package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"goblin/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// Registry is the authoritative in-memory index of aggregated capabilities.
// A single lock protects every map; syncing an upstream is expensive (it
// talks to the network) but installing the result is a cheap, uncontended
// critical section, mirroring the single-lock/refresh-then-swap shape of the
// registry this one replaces.
type Registry struct {
	mu sync.RWMutex

	tools     map[string]*ToolEntry
	prompts   map[string]*PromptEntry
	resources map[string]*ResourceEntry
	templates map[string]*ResourceTemplateEntry

	toolsByUpstream     map[string]map[string]struct{}
	promptsByUpstream   map[string]map[string]struct{}
	resourcesByUpstream map[string]map[string]struct{}
	templatesByUpstream map[string]map[string]struct{}

	localTools map[string]*LocalTool

	subMu       sync.Mutex
	subscribers []chan ChangeEvent
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:               make(map[string]*ToolEntry),
		prompts:             make(map[string]*PromptEntry),
		resources:           make(map[string]*ResourceEntry),
		templates:           make(map[string]*ResourceTemplateEntry),
		toolsByUpstream:     make(map[string]map[string]struct{}),
		promptsByUpstream:   make(map[string]map[string]struct{}),
		resourcesByUpstream: make(map[string]map[string]struct{}),
		templatesByUpstream: make(map[string]map[string]struct{}),
		localTools:          make(map[string]*LocalTool),
	}
}

// Subscribe returns a channel of change events. The channel is buffered; a
// slow subscriber drops events rather than blocking the registry.
func (r *Registry) Subscribe() <-chan ChangeEvent {
	ch := make(chan ChangeEvent, 8)
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) publish(ev ChangeEvent) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			logging.Warn("Registry", "dropping change event for %s: subscriber channel full", ev.Upstream)
		}
	}
}

// RegisterLocalTool installs a tool not backed by any upstream. Local tool
// names are exposed verbatim and always win over an upstream-owned name that
// happens to collide with them.
func (r *Registry) RegisterLocalTool(tool mcp.Tool, handler LocalToolHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.localTools[tool.Name]; exists {
		return fmt.Errorf("local tool %q already registered", tool.Name)
	}
	r.localTools[tool.Name] = &LocalTool{Tool: tool, Handler: handler}
	return nil
}

// SyncUpstream fetches the current tools, prompts, resources, and resource
// templates from an upstream's client and installs them, replacing anything
// previously known about that upstream. Tool discovery failure is fatal;
// prompts, resources, and templates are optional MCP capabilities, so a
// failure there is tolerated and treated as an empty set.
func (r *Registry) SyncUpstream(ctx context.Context, upstream string, client capabilityLister) error {
	var (
		tools     []mcp.Tool
		prompts   []mcp.Prompt
		resources []mcp.Resource
		templates []mcp.ResourceTemplate
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		tools, err = fetchAllTools(gctx, client)
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		prompts, err = fetchAllPrompts(gctx, client)
		if err != nil {
			logging.Debug("Registry", "upstream %s: prompts unavailable: %s", upstream, err)
			prompts = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		resources, err = fetchAllResources(gctx, client)
		if err != nil {
			logging.Debug("Registry", "upstream %s: resources unavailable: %s", upstream, err)
			resources = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		templates, err = fetchAllResourceTemplates(gctx, client)
		if err != nil {
			logging.Debug("Registry", "upstream %s: resource templates unavailable: %s", upstream, err)
			templates = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("sync upstream %s: %w", upstream, err)
	}

	r.installTools(upstream, tools)
	r.installPrompts(upstream, prompts)
	r.installResources(upstream, resources)
	if err := r.installTemplates(upstream, templates); err != nil {
		logging.Warn("Registry", "upstream %s: %s", upstream, err)
	}

	logging.Info("Registry", "synced upstream %s: %d tools, %d prompts, %d resources, %d templates",
		upstream, len(tools), len(prompts), len(resources), len(templates))

	r.publish(ChangeEvent{Kind: ChangeUpstreamSynced, Upstream: upstream, Timestamp: time.Now()})
	return nil
}

func (r *Registry) installTools(upstream string, items []mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.toolsByUpstream[upstream] {
		delete(r.tools, id)
	}
	ids := make(map[string]struct{}, len(items))
	for _, tool := range items {
		name := namespaceName(upstream, tool.Name)
		r.tools[name] = &ToolEntry{Name: name, Upstream: upstream, OriginalName: tool.Name, Tool: tool}
		ids[name] = struct{}{}
	}
	r.toolsByUpstream[upstream] = ids
}

func (r *Registry) installPrompts(upstream string, items []mcp.Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.promptsByUpstream[upstream] {
		delete(r.prompts, id)
	}
	ids := make(map[string]struct{}, len(items))
	for _, prompt := range items {
		name := namespaceName(upstream, prompt.Name)
		r.prompts[name] = &PromptEntry{Name: name, Upstream: upstream, OriginalName: prompt.Name, Prompt: prompt}
		ids[name] = struct{}{}
	}
	r.promptsByUpstream[upstream] = ids
}

func (r *Registry) installResources(upstream string, items []mcp.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.resourcesByUpstream[upstream] {
		delete(r.resources, id)
	}
	ids := make(map[string]struct{}, len(items))
	for _, res := range items {
		uri := namespaceResourceURI(upstream, res.URI)
		r.resources[uri] = &ResourceEntry{URI: uri, Upstream: upstream, RawURI: res.URI, Resource: res}
		ids[uri] = struct{}{}
	}
	r.resourcesByUpstream[upstream] = ids
}

func (r *Registry) installTemplates(upstream string, items []mcp.ResourceTemplate) error {
	var firstErr error
	entries := make([]*ResourceTemplateEntry, 0, len(items))
	ids := make(map[string]struct{}, len(items))

	for _, tmpl := range items {
		matcher, err := newTemplateMatcher(tmpl.URITemplate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uri := namespaceTemplateURI(upstream, tmpl.URITemplate)
		entry := &ResourceTemplateEntry{
			URITemplate:      uri,
			Upstream:         upstream,
			RawTemplate:      tmpl.URITemplate,
			ResourceTemplate: tmpl,
			matcher:          matcher,
		}
		entries = append(entries, entry)
		ids[uri] = struct{}{}
	}

	r.mu.Lock()
	for id := range r.templatesByUpstream[upstream] {
		delete(r.templates, id)
	}
	for _, entry := range entries {
		r.templates[entry.URITemplate] = entry
	}
	r.templatesByUpstream[upstream] = ids
	r.mu.Unlock()

	return firstErr
}

// RemoveUpstream discards every entry owned by upstream and emits a change
// event so subscribers refresh their notion of the capability set.
func (r *Registry) RemoveUpstream(upstream string) {
	r.mu.Lock()
	for id := range r.toolsByUpstream[upstream] {
		delete(r.tools, id)
	}
	delete(r.toolsByUpstream, upstream)
	for id := range r.promptsByUpstream[upstream] {
		delete(r.prompts, id)
	}
	delete(r.promptsByUpstream, upstream)
	for id := range r.resourcesByUpstream[upstream] {
		delete(r.resources, id)
	}
	delete(r.resourcesByUpstream, upstream)
	for id := range r.templatesByUpstream[upstream] {
		delete(r.templates, id)
	}
	delete(r.templatesByUpstream, upstream)
	r.mu.Unlock()

	r.publish(ChangeEvent{Kind: ChangeUpstreamRemoved, Upstream: upstream, Timestamp: time.Now()})
}

// GetLocalTool returns a locally-registered tool by its exposed name.
func (r *Registry) GetLocalTool(name string) (*LocalTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.localTools[name]
	return t, ok
}

// GetTool resolves a namespaced tool name to its upstream-backed entry.
func (r *Registry) GetTool(name string) (*ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// GetPrompt resolves a namespaced prompt name.
func (r *Registry) GetPrompt(name string) (*PromptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// ResourceResolution is the result of resolving a namespaced resource uri,
// either to a known concrete resource or to an upstream + raw uri matched
// through one of that upstream's resource templates.
type ResourceResolution struct {
	Upstream    string
	RawURI      string
	ViaTemplate bool
}

// ResolveResourceURI implements find_upstream_for_uri: exact match against
// known resources, else parse the namespaced uri and match its raw uri
// against the candidate upstream's resource templates, breaking ties toward
// the template with the most literal (non-variable) characters.
func (r *Registry) ResolveResourceURI(uri string) (ResourceResolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.resources[uri]; ok {
		return ResourceResolution{Upstream: entry.Upstream, RawURI: entry.RawURI}, true
	}

	upstream, rawURI, ok := parseNamespacedURI(uri)
	if !ok {
		return ResourceResolution{}, false
	}

	var best *ResourceTemplateEntry
	for id := range r.templatesByUpstream[upstream] {
		t := r.templates[id]
		if t == nil || !t.matcher.Match(rawURI) {
			continue
		}
		if best == nil || t.matcher.literalChars > best.matcher.literalChars {
			best = t
		}
	}
	if best == nil {
		return ResourceResolution{}, false
	}
	return ResourceResolution{Upstream: upstream, RawURI: rawURI, ViaTemplate: true}, true
}

// ListTools returns every tool currently exposed: local tools first, then
// upstream-backed tools (skipping any whose namespaced name collides with a
// local tool, since local tools always win).
func (r *Registry) ListTools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Tool, 0, len(r.localTools)+len(r.tools))
	for _, lt := range r.localTools {
		out = append(out, lt.Tool)
	}
	for name, entry := range r.tools {
		if _, shadowed := r.localTools[name]; shadowed {
			continue
		}
		exposed := entry.Tool
		exposed.Name = entry.Name
		out = append(out, exposed)
	}
	return out
}

// ListPrompts returns every aggregated prompt.
func (r *Registry) ListPrompts() []mcp.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Prompt, 0, len(r.prompts))
	for _, entry := range r.prompts {
		exposed := entry.Prompt
		exposed.Name = entry.Name
		out = append(out, exposed)
	}
	return out
}

// ListResources returns every aggregated concrete resource.
func (r *Registry) ListResources() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.Resource, 0, len(r.resources))
	for _, entry := range r.resources {
		exposed := entry.Resource
		exposed.URI = entry.URI
		out = append(out, exposed)
	}
	return out
}

// ListResourceTemplates returns every aggregated resource template.
func (r *Registry) ListResourceTemplates() []mcp.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.ResourceTemplate, 0, len(r.templates))
	for _, entry := range r.templates {
		exposed := entry.ResourceTemplate
		exposed.URITemplate = entry.URITemplate
		out = append(out, exposed)
	}
	return out
}

// ToolInfo is one exposed tool alongside the upstream serving it, empty for
// a locally-registered tool. It exists for the HTTP introspection surface,
// which needs the owning upstream alongside each tool.
type ToolInfo struct {
	Tool     mcp.Tool
	ServerID string
}

// ListToolInfo is ListTools with each tool's owning upstream attached.
func (r *Registry) ListToolInfo() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolInfo, 0, len(r.localTools)+len(r.tools))
	for _, lt := range r.localTools {
		out = append(out, ToolInfo{Tool: lt.Tool})
	}
	for name, entry := range r.tools {
		if _, shadowed := r.localTools[name]; shadowed {
			continue
		}
		exposed := entry.Tool
		exposed.Name = entry.Name
		out = append(out, ToolInfo{Tool: exposed, ServerID: entry.Upstream})
	}
	return out
}

// UpstreamToolCounts returns the number of exposed tools per upstream, for
// the /servers introspection surface.
func (r *Registry) UpstreamToolCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.toolsByUpstream))
	for u, ids := range r.toolsByUpstream {
		out[u] = len(ids)
	}
	return out
}

// Upstreams returns the set of upstream names that have been synced and not
// removed, including ones whose tool, prompt, resource, and template sets
// are all empty.
func (r *Registry) Upstreams() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for u := range r.toolsByUpstream {
		seen[u] = struct{}{}
	}
	for u := range r.promptsByUpstream {
		seen[u] = struct{}{}
	}
	for u := range r.resourcesByUpstream {
		seen[u] = struct{}{}
	}
	for u := range r.templatesByUpstream {
		seen[u] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	return out
}

func namespaceName(upstream, name string) string {
	return upstream + "_" + name
}

func namespaceResourceURI(upstream, rawURI string) string {
	return "mcp://" + upstream + "/" + percentEncode(rawURI)
}

// NamespaceResourceURI exposes the forward uri→namespace rule so callers
// outside this package (the notification hub, translating an upstream's
// resources/updated(rawUri) into the namespaced uri a client subscribed to)
// don't have to reimplement the percent-encoding rule.
func NamespaceResourceURI(upstream, rawURI string) string {
	return namespaceResourceURI(upstream, rawURI)
}

// percentEncode escapes every byte outside RFC 3986's unreserved set
// (ALPHA / DIGIT / "-" / "." / "_" / "~"), so a namespaced uri never
// contains a literal "/" other than the one separating upstream from the
// encoded raw uri.
func percentEncode(raw string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if isUnreservedURIByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}

func isUnreservedURIByte(c byte) bool {
	return ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func namespaceTemplateURI(upstream, rawTemplate string) string {
	return "mcp://" + upstream + "/" + percentEncodeTemplateLiterals(rawTemplate)
}

func parseNamespacedURI(uri string) (upstream, rawURI string, ok bool) {
	const prefix = "mcp://"
	if !strings.HasPrefix(uri, prefix) {
		return "", "", false
	}
	rest := uri[len(prefix):]
	upstream, encoded, found := strings.Cut(rest, "/")
	if !found {
		return "", "", false
	}
	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return "", "", false
	}
	return upstream, raw, true
}
