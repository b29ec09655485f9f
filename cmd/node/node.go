package main

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/config"
	"github.com/dreamware/torua-master/internal/region"
	"github.com/dreamware/torua-master/internal/storage"
)

// Node is a region server hosting catalog regions.
//
// Each process lifetime gets a fresh start code, so the coordinator can tell
// a restarted server apart from the instance it replaced on the same address.
type Node struct {
	// regions maps full region names to their hosted instances.
	// Protected by mu.
	regions map[string]*region.Region

	ID        string
	Addr      string
	StartCode string

	mu sync.RWMutex
}

// NewNode creates a node with a new start code and no regions.
func NewNode(id, addr string) *Node {
	return &Node{
		ID:        id,
		Addr:      addr,
		StartCode: uuid.NewString(),
		regions:   make(map[string]*region.Region),
	}
}

// Info describes the node the way the coordinator sees it.
func (n *Node) Info() cluster.NodeInfo {
	return cluster.NodeInfo{ID: n.ID, Addr: n.Addr, StartCode: n.StartCode}
}

// AddRegion starts hosting r, replacing any region with the same name.
func (n *Node) AddRegion(r *region.Region) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.regions[r.Name] = r
}

// GetRegion returns the hosted region, or nil.
func (n *Node) GetRegion(name string) *region.Region {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.regions[name]
}

// RegionNames returns the hosted region names in order.
func (n *Node) RegionNames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.regions))
	for name := range n.regions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes every hosted region and returns the first error.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var first error
	for name, r := range n.regions {
		if err := r.Close(); err != nil {
			log.Warn("close region failed", zap.String("region", name), zap.Error(err))
			if first == nil {
				first = errors.Annotatef(err, "close %s", name)
			}
		}
		delete(n.regions, name)
	}
	return first
}

// openRegions opens every configured region on the configured store backend.
// Only catalog regions can be hosted.
func openRegions(cfg config.NodeConfig) ([]*region.Region, error) {
	regions := make([]*region.Region, 0, len(cfg.Regions))
	for _, name := range cfg.Regions {
		if !catalog.IsCatalogRegion(name) {
			closeAll(regions)
			return nil, errors.Errorf("%s is not a catalog region", name)
		}
		store, err := openStore(cfg, name)
		if err != nil {
			closeAll(regions)
			return nil, errors.Annotatef(err, "open store for %s", name)
		}
		regions = append(regions, region.New(name, store))
	}
	return regions, nil
}

func openStore(cfg config.NodeConfig, name string) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return storage.OpenSQLite(filepath.Join(cfg.DataDir, storeFileName(name)))
	case config.StoreMemory, "":
		return storage.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown store %q", cfg.Store)
	}
}

// storeFileName maps a region name to a file name, e.g. "-ROOT-,,0" to
// "_ROOT___0.db".
func storeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name) + ".db"
}

func closeAll(regions []*region.Region) {
	for _, r := range regions {
		_ = r.Close()
	}
}

// routes returns the region server's HTTP API.
//
//	GET    /health
//	GET    /info
//	GET    /regions/{name}/rows
//	PUT    /regions/{name}/rows/{key}
//	DELETE /regions/{name}/rows/{key}
//	GET    /regions/{name}/stats
func (n *Node) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /info", n.handleInfo)
	mux.HandleFunc("GET /regions/{name}/rows", n.withRegion(handleRows(n)))
	mux.HandleFunc("PUT /regions/{name}/rows/{key}", n.withRegion(handlePutRow))
	mux.HandleFunc("DELETE /regions/{name}/rows/{key}", n.withRegion(handleDeleteRow))
	mux.HandleFunc("GET /regions/{name}/stats", n.withRegion(handleRegionStats))
	return mux
}

type regionHandler func(r *region.Region, w http.ResponseWriter, req *http.Request)

// withRegion resolves {name} to a hosted region, answering 404 otherwise.
func (n *Node) withRegion(h regionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := req.PathValue("name")
		r := n.GetRegion(name)
		if r == nil {
			http.Error(w, "region not hosted: "+name, http.StatusNotFound)
			return
		}
		h(r, w, req)
	}
}

// handleRows serves a full scan of the region. The coordinator's catalog
// scanners read root and meta regions through this endpoint.
func handleRows(n *Node) regionHandler {
	return func(r *region.Region, w http.ResponseWriter, _ *http.Request) {
		rows, err := r.Rows()
		if err != nil {
			writeRegionError(w, err)
			return
		}
		writeJSON(w, cluster.RowsResponse{Region: r.Name, StartCode: n.StartCode, Rows: rows})
	}
}

// handlePutRow stores a catalog row. The key must be the name of the
// region the row describes.
func handlePutRow(r *region.Region, w http.ResponseWriter, req *http.Request) {
	var row cluster.CatalogRow
	if err := json.NewDecoder(req.Body).Decode(&row); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if key := req.PathValue("key"); key != row.Region {
		http.Error(w, "key "+key+" does not match row region "+row.Region, http.StatusBadRequest)
		return
	}
	if err := r.PutRow(row); err != nil {
		writeRegionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteRow removes a row. Deleting a missing row succeeds.
func handleDeleteRow(r *region.Region, w http.ResponseWriter, req *http.Request) {
	if err := r.DeleteRow(req.PathValue("key")); err != nil {
		writeRegionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleRegionStats(r *region.Region, w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		Info  region.Info  `json:"info"`
		Stats region.Stats `json:"operations"`
	}{Info: r.Info(), Stats: r.GetStats()})
}

func (n *Node) handleInfo(w http.ResponseWriter, _ *http.Request) {
	names := n.RegionNames()
	infos := make([]region.Info, 0, len(names))
	for _, name := range names {
		if r := n.GetRegion(name); r != nil {
			infos = append(infos, r.Info())
		}
	}
	writeJSON(w, struct {
		NodeID    string        `json:"node_id"`
		StartCode string        `json:"start_code"`
		Regions   []region.Info `json:"regions"`
		Count     int           `json:"region_count"`
	}{NodeID: n.ID, StartCode: n.StartCode, Regions: infos, Count: len(infos)})
}

// writeRegionError maps region errors to HTTP status codes.
func writeRegionError(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case catalog.ErrInvalidRow:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case region.ErrNotServing:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Warn("region operation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response failed", zap.Error(err))
	}
}
