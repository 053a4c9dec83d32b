// Package nodeidentity loads or creates this server's own persistent
// mesh identity: a small JSON file living alongside the database,
// grounded on the Rust daemon's mesh/node_identity.rs::load_or_create.
package nodeidentity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dorky-robot/salita-mesh/internal/idgen"
	"github.com/dorky-robot/salita-mesh/pkg/log"
)

const fileName = "node_identity.json"

// Identity is this node's durable self-description, written once and
// read on every subsequent start.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// LoadOrCreate reads node_identity.json from dataDir, creating it with a
// fresh UUIDv7 id and a default name if it doesn't exist yet. The
// returned identity is stable across restarts once written.
func LoadOrCreate(dataDir string, logger log.Logger) (Identity, error) {
	path := filepath.Join(dataDir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return Identity{}, err
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return Identity{}, err
	}

	id := Identity{
		ID:        idgen.New(),
		Name:      defaultNodeName(),
		CreatedAt: time.Now().UTC(),
	}
	encoded, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return Identity{}, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return Identity{}, err
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return Identity{}, err
	}

	logger.Infof("created new node identity: %s", id.ID)
	return id, nil
}

// defaultNodeName falls back to the machine hostname, or a fixed label
// when the hostname can't be read.
func defaultNodeName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "Salita Node"
	}
	return name
}
