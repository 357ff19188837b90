package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// --- minimal OpenAPI 3 document model, just enough for tool synthesis ---

type oaDocument struct {
	Servers []oaServer          `json:"servers" yaml:"servers"`
	Paths   map[string]oaPathItem `json:"paths" yaml:"paths"`
}

type oaServer struct {
	URL string `json:"url" yaml:"url"`
}

type oaPathItem map[string]oaOperation // method (lowercase) -> operation

type oaOperation struct {
	OperationID string        `json:"operationId" yaml:"operationId"`
	Parameters  []oaParameter `json:"parameters" yaml:"parameters"`
	RequestBody *oaRequestBody `json:"requestBody" yaml:"requestBody"`
}

type oaParameter struct {
	Name     string         `json:"name" yaml:"name"`
	In       string         `json:"in" yaml:"in"` // path|query|header|cookie
	Required bool           `json:"required" yaml:"required"`
	Schema   map[string]any `json:"schema" yaml:"schema"`
}

type oaRequestBody struct {
	Required bool                  `json:"required" yaml:"required"`
	Content  map[string]oaMediaType `json:"content" yaml:"content"`
}

type oaMediaType struct {
	Schema map[string]any `json:"schema" yaml:"schema"`
}

// openAPITool is one synthesized tool, bound to its source operation for
// call translation.
type openAPITool struct {
	info      ToolInfo
	method    string
	path      string
	op        oaOperation
}

// openAPIRuntime is the in-process adapter for openapi servers: there is
// no persistent transport, so initialize parses the document once and every
// call is a direct HTTP round-trip.
type openAPIRuntime struct {
	baseURL  string
	security *settings.OpenAPISecurity
	client   *http.Client
	tools    map[string]*openAPITool // keyed by synthesized tool name
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
var pathParam = regexp.MustCompile(`\{[^}]+\}`)

func (c *Connector) initOpenAPI(ctx context.Context) error {
	payload := c.cfg.OpenAPI
	doc, err := fetchOpenAPIDocument(ctx, payload)
	if err != nil {
		return common.NewUpstreamError(common.KindSchema, c.name, "failed to load openapi document", err)
	}

	baseURL := effectiveBaseURL(doc, payload)
	security := payload.Security

	runtime := &openAPIRuntime{
		baseURL:  baseURL,
		security: security,
		client:   c.httpClient(nil),
		tools:    map[string]*openAPITool{},
	}

	tools := synthesizeTools(doc)
	raw := make([]ToolInfo, 0, len(tools))
	for name, t := range tools {
		t.info.Name = name
		t.info.Server = c.name
		runtime.tools[name] = t
		raw = append(raw, t.info)
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].Name < raw[j].Name })

	c.mu.Lock()
	c.openAPI = runtime
	c.mu.Unlock()
	c.setOpenAPITools(raw)
	return nil
}

// setOpenAPITools applies the same per-tool override decoration setTools
// does, without going through an *mcp.Tool list (openapi tools are
// synthesized directly as ToolInfo).
func (c *Connector) setOpenAPITools(raw []ToolInfo) {
	decorated := make([]ToolInfo, 0, len(raw))
	for _, t := range raw {
		override, hasOverride := c.cfg.Tools[t.Name]
		enabled := true
		desc := t.Description
		if hasOverride {
			if override.Enabled != nil {
				enabled = *override.Enabled
			}
			if override.Description != "" {
				desc = override.Description
			}
		}
		if !enabled {
			continue
		}
		t.Description = desc
		t.Enabled = true
		decorated = append(decorated, t)
	}
	c.mu.Lock()
	c.tools = decorated
	c.mu.Unlock()
}

func fetchOpenAPIDocument(ctx context.Context, payload *settings.OpenAPIPayload) (*oaDocument, error) {
	var raw []byte
	if len(payload.Schema) > 0 {
		raw = payload.Schema
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, common.ExpandEnv(payload.URL), nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
	}

	var doc oaDocument
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse openapi json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse openapi yaml: %w", err)
		}
	}
	return &doc, nil
}

// effectiveBaseURL picks the first servers[].url, else derives one from the
// document's own URL.
func effectiveBaseURL(doc *oaDocument, payload *settings.OpenAPIPayload) string {
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		return strings.TrimRight(doc.Servers[0].URL, "/")
	}
	if payload.URL == "" {
		return ""
	}
	u, err := url.Parse(payload.URL)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// synthesizeTools derives tool names from each operation, resolves
// collisions, and assembles each input schema.
func synthesizeTools(doc *oaDocument) map[string]*openAPITool {
	out := map[string]*openAPITool{}
	used := map[string]bool{}

	// Deterministic iteration: sort paths, then HTTP methods.
	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		item := doc.Paths[p]
		methods := make([]string, 0, len(item))
		for m := range item {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := item[method]
			name := uniqueToolName(op.OperationID, method, p, used)
			used[name] = true

			schema := assembleInputSchema(op)
			out[name] = &openAPITool{
				info: ToolInfo{
					Description: fmt.Sprintf("%s %s", strings.ToUpper(method), p),
					InputSchema: schema,
				},
				method: strings.ToUpper(method),
				path:   p,
				op:     op,
			}
		}
	}
	return out
}

func uniqueToolName(operationID, method, path string, used map[string]bool) string {
	base := operationID
	if base == "" {
		base = synthesizeName(method, path)
	}
	name := base
	for i := 1; used[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	return name
}

func synthesizeName(method, path string) string {
	cleaned := pathParam.ReplaceAllString(path, "")
	segments := strings.Split(cleaned, "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = nonAlnum.ReplaceAllString(strings.ToLower(seg), "")
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 {
		parts = []string{"root"}
	}
	return strings.ToLower(method) + "_" + strings.Join(parts, "_")
}

func assembleInputSchema(op oaOperation) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, p := range op.Parameters {
		switch p.In {
		case "path":
			properties[p.Name] = map[string]any{"type": "string"}
			required = append(required, p.Name)
		case "query", "header":
			schema := p.Schema
			if schema == nil {
				schema = map[string]any{"type": "string"}
			}
			properties[p.Name] = schema
			if p.Required {
				required = append(required, p.Name)
			}
		}
	}

	if op.RequestBody != nil {
		if mt, ok := op.RequestBody.Content["application/json"]; ok {
			properties["body"] = mt.Schema
			if op.RequestBody.Required {
				required = append(required, "body")
			}
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// call binds path/query/header parameters and the JSON body, and
// translates a non-2xx response into an UpstreamError{kind:upstream}.
func (r *openAPIRuntime) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, common.NewUpstreamError(common.KindNotFound, "", fmt.Sprintf("unknown openapi tool %q", name), nil)
	}

	path := tool.path
	query := url.Values{}
	headers := http.Header{}

	for _, p := range tool.op.Parameters {
		val, present := args[p.Name]
		if !present {
			continue
		}
		strVal := fmt.Sprintf("%v", val)
		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(strVal))
		case "query":
			query.Set(p.Name, strVal)
		case "header":
			headers.Set(p.Name, strVal)
		}
	}

	var body io.Reader
	if tool.method == http.MethodPost || tool.method == http.MethodPut || tool.method == http.MethodPatch {
		if b, present := args["body"]; present {
			data, err := json.Marshal(b)
			if err != nil {
				return nil, common.NewUpstreamError(common.KindSchema, "", "failed to marshal request body", err)
			}
			body = bytes.NewReader(data)
			headers.Set("Content-Type", "application/json")
		}
	}

	fullURL := r.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, tool.method, fullURL, body)
	if err != nil {
		return nil, common.NewUpstreamError(common.KindInternal, "", "failed to build request", err)
	}
	for k := range headers {
		req.Header.Set(k, headers.Get(k))
	}
	applySecurity(req, r.security, query)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, common.NewUpstreamError(common.KindTransport, "", "openapi request failed", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, common.NewUpstreamError(common.KindUpstream, "",
			fmt.Sprintf("%d %s - %s", resp.StatusCode, resp.Status, string(respBody)), nil)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(respBody)}},
	}, nil
}

// applySecurity attaches the configured API key/bearer/basic credential.
func applySecurity(req *http.Request, sec *settings.OpenAPISecurity, query url.Values) {
	if sec == nil || sec.Type == "" || sec.Type == "none" {
		return
	}
	value := common.ExpandEnv(sec.Value)
	token := common.ExpandEnv(sec.Token)

	switch sec.Type {
	case "apiKey":
		switch sec.In {
		case "header":
			req.Header.Set(sec.Name, value)
		case "query":
			q := req.URL.Query()
			q.Set(sec.Name, value)
			req.URL.RawQuery = q.Encode()
		case "cookie":
			req.AddCookie(&http.Cookie{Name: sec.Name, Value: value})
		}
	case "http":
		if sec.Scheme == "basic" {
			req.Header.Set("Authorization", "Basic "+token)
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "oauth2", "openIdConnect":
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

