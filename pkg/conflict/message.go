package conflict

import (
	"encoding/json"
	"fmt"
)

// Request is the complete snapshot sent to the resolution worker. It holds
// plain values only; positions are {x,y,z} records.
type Request struct {
	SessionID    string        `json:"sessionId"`
	Turn         int           `json:"currentTurnNumber"`
	Territories  []Territory   `json:"territories"`
	PlayerOrders Orders        `json:"playerOrders"`
	AIOrders     Orders        `json:"aiOrders"`
	Routes       []Route       `json:"routes"`
	Map          *WorldMap     `json:"map,omitempty"`
	Markers      []EventMarker `json:"eventMarkers,omitempty"`
	Config       *Config       `json:"config,omitempty"`
	Sides        Sides         `json:"sides,omitzero"`
	// Seed pins the random source. Zero lets the worker pick one.
	Seed int64 `json:"seed,omitempty"`
}

// Outcome is the game state after a turn, from the player's point of view.
type Outcome string

const (
	OutcomeOngoing Outcome = "ongoing"
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeDraw    Outcome = "draw"
)

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool { return o != OutcomeOngoing && o != "" }

// Result is a fully resolved turn.
type Result struct {
	SessionID    string        `json:"sessionId"`
	Turn         int           `json:"currentTurnNumber"`
	Territories  []Territory   `json:"territories"`
	PlayerOrders Orders        `json:"playerOrders"`
	AIOrders     Orders        `json:"aiOrders"`
	Routes       []Route       `json:"routes"`
	Markers      []EventMarker `json:"eventMarkers"`
	Outcome      Outcome       `json:"outcome"`
	Owned        map[Owner]int `json:"owned"`
	Events       []TurnEvent   `json:"events"`
	Cues         []AssetCue    `json:"assetCueQueue"`
}

// Response is what the worker sends back: either a result or an error. Callers
// must check Error before reading anything but SessionID.
type Response struct {
	*Result
	Error string `json:"error,omitempty"`
}

// DecodeResponse parses a worker reply.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error == "" && resp.Result == nil {
		return nil, fmt.Errorf("decode response: empty reply")
	}
	return &resp, nil
}

// ErrorResponse encodes a failure reply for the request with the given
// session id.
func ErrorResponse(sessionID string, err error) []byte {
	data, _ := json.Marshal(struct {
		SessionID string `json:"sessionId"`
		Error     string `json:"error"`
	}{sessionID, err.Error()})
	return data
}
