package storage

import (
	"encoding/json"
	"time"

	"narrative-server/internal/models"
)

// marshalPlayer serializes the full player document. Nested maps serialize as
// JSON objects, never arrays.
func marshalPlayer(p *models.Player) ([]byte, error) {
	p.UpdatedAt = time.Now().UTC()
	return json.Marshal(p)
}

// unmarshalPlayer deserializes and normalizes a player document, migrating
// records persisted under older schemas forward.
func unmarshalPlayer(data []byte) (*models.Player, error) {
	var p models.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	p.Normalize()
	return &p, nil
}
