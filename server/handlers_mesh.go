package server

import "net/http"

// meshNodeView is the JSON projection of a storage.MeshNode, omitting
// the internal Metadata blob the persistence layer carries but no
// client needs.
type meshNodeView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Hostname     string   `json:"hostname"`
	Port         int      `json:"port"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
	IsCurrent    bool     `json:"isCurrent"`
}

// handleListMeshNodes lists every node this server knows about,
// including itself. Any authenticated caller (owner session or peer
// token) may call it: a peer discovering the rest of the mesh needs
// the same view the owner's own dashboard does.
func (s *Server) handleListMeshNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.ListMeshNodes(r.Context())
	if err != nil {
		writeError(w, s.logErrorf, err)
		return
	}

	views := make([]meshNodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, meshNodeView{
			ID:           n.ID,
			Name:         n.Name,
			Hostname:     n.Hostname,
			Port:         n.Port,
			Status:       string(n.Status),
			Capabilities: n.Capabilities,
			IsCurrent:    n.IsCurrent,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
