package smartroute

import (
	"context"
	"sort"
	"sync"

	"github.com/mcphub-dev/mcphub/internal/common"
	"github.com/mcphub-dev/mcphub/internal/connector"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/pool"
)

// Match is one scored tool returned by Search.
type Match struct {
	Server     string
	Tool       string
	Similarity float64
}

// Index answers "top-k tools for query" over the connector pool's current
// tool set, backed by Store/Embedder, with a degraded in-memory fallback
// when the vector store is unavailable.
type Index struct {
	pool     *pool.Pool
	logger   *logging.Logger
	embedder *Embedder
	store    *Store

	degradedOnce sync.Once
	degraded     bool
}

// NewIndex wires an Index over the pool, with optional store/embedder
// (nil store means smart routing is disabled entirely and Search always
// runs in degraded mode).
func NewIndex(p *pool.Pool, logger *logging.Logger, embedder *Embedder, store *Store) *Index {
	return &Index{pool: p, logger: logger, embedder: embedder, store: store}
}

// Refresh re-embeds every visible tool whose description text has changed
// since it was last indexed, and, for each connector still in the pool,
// removes rows for tools it no longer exposes; rows of servers removed from
// the pool are left in place. Triggered on pool tool-list-change and
// settings change. An Index exists only when smart routing was enabled at
// startup; switching it on at runtime builds none.
func (idx *Index) Refresh(ctx context.Context) error {
	if idx.store == nil || idx.embedder == nil {
		return nil
	}
	for _, c := range idx.pool.List() {
		if c.Status() != connector.StatusConnected || !c.Config().IsEnabled() {
			_ = idx.store.DeleteServer(ctx, c.Name())
			continue
		}
		tools := c.Tools()
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name)
			if !t.Enabled {
				continue
			}
			text := ToolEmbeddingText(t.Server, t.Name, t.Description, t.InputSchema)
			hash := TextHash(text)
			existing, err := idx.store.ExistingHash(ctx, t.Server, t.Name)
			if err == nil && existing == hash {
				continue
			}
			vec, err := idx.embedder.Embed(ctx, text)
			if err != nil {
				idx.emit("embed failed for " + t.Server + "/" + t.Name + ": " + err.Error())
				continue
			}
			_ = idx.store.Upsert(ctx, ToolVector{
				Server: t.Server, Tool: t.Name, Description: t.Description,
				TextHash: hash, Embedding: vec,
			})
		}
		_ = idx.store.DeleteMissing(ctx, c.Name(), names)
	}
	return nil
}

// Search returns up to k tools most relevant to query, restricted to scope
// (nil/empty means every connected server). Tools below threshold are
// dropped. Falls back to a content-type-only, placeholder-similarity match
// when the vector store is unavailable, logging the degradation once.
func (idx *Index) Search(ctx context.Context, query string, k int, threshold float64, scope []string) ([]Match, error) {
	if idx.store == nil || idx.embedder == nil {
		return idx.searchDegraded(k, scope), nil
	}

	vec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		idx.enterDegraded("embedding provider error: " + err.Error())
		return idx.searchDegraded(k, scope), nil
	}

	hits, err := idx.store.Nearest(ctx, vec, k, scope)
	if err != nil {
		idx.enterDegraded("vector store unavailable: " + err.Error())
		return idx.searchDegraded(k, scope), nil
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < threshold {
			continue
		}
		out = append(out, Match{Server: h.Server, Tool: h.Tool, Similarity: h.Similarity})
	}
	return out, nil
}

// searchDegraded lists visible tools restricted to scope with a fixed
// placeholder similarity, used when the vector backend is unreachable so
// smart routing degrades to "every admitted tool" rather than failing.
func (idx *Index) searchDegraded(k int, scope []string) []Match {
	allowed := map[string]bool{}
	for _, s := range scope {
		allowed[s] = true
	}

	var out []Match
	for _, c := range idx.pool.List() {
		if c.Status() != connector.StatusConnected || !c.Config().IsEnabled() {
			continue
		}
		if len(scope) > 0 && !allowed[c.Name()] {
			continue
		}
		for _, t := range c.Tools() {
			if !t.Enabled {
				continue
			}
			out = append(out, Match{Server: t.Server, Tool: t.Name, Similarity: 0.5})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Tool < out[j].Tool
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func (idx *Index) enterDegraded(reason string) {
	idx.degradedOnce.Do(func() {
		idx.degraded = true
		idx.emit("smart routing entering degraded mode: " + reason)
	})
}

// Degraded reports whether the index has fallen back to content-type-only
// matching for the lifetime of this process.
func (idx *Index) Degraded() bool { return idx.degraded }

func (idx *Index) emit(msg string) {
	if idx.logger == nil {
		return
	}
	e := common.NewEvent(common.EventSystem, common.DirectionInternal).WithMetadata("message", msg)
	idx.logger.Emit(e)
}
