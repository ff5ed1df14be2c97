package raid

import "math"

// ============================================
// TRANSPORT ARGUMENT TYPES
// ============================================

// Quantities arrive as JSON numbers so that fractional values can be
// rejected with ErrInvalidQuantity instead of a decode error.

// ResourcesArgs is the wire form of ResourcesRequest.
type ResourcesArgs struct {
	Explosive string  `json:"explosive"`
	Quantity  float64 `json:"quantity"`
}

// Request converts the arguments, rejecting non-whole quantities.
func (a ResourcesArgs) Request() (ResourcesRequest, error) {
	q, err := WholeQuantity(a.Explosive, a.Quantity)
	if err != nil {
		return ResourcesRequest{}, err
	}
	return ResourcesRequest{Explosive: a.Explosive, Quantity: q}, nil
}

// OptimizeArgs is the wire form of an optimization request in either mode.
// In legacy mode the explosive counts are ignored.
type OptimizeArgs struct {
	Structures map[string]float64 `json:"structures"`
	Explosives map[string]float64 `json:"explosives"`
	Mode       Mode               `json:"mode,omitempty"`
	Save       bool               `json:"save,omitempty"`
}

// Request converts the arguments, rejecting non-whole counts.
func (a OptimizeArgs) Request() (OptimizeRequest, error) {
	req := OptimizeRequest{
		Structures: make(map[string]int, len(a.Structures)),
		Explosives: make(map[string]int, len(a.Explosives)),
	}
	for id, v := range a.Structures {
		n, err := WholeQuantity(id, v)
		if err != nil {
			return OptimizeRequest{}, err
		}
		req.Structures[id] = n
	}
	for id, v := range a.Explosives {
		n, err := WholeQuantity(id, v)
		if err != nil {
			return OptimizeRequest{}, err
		}
		req.Explosives[id] = n
	}
	return req, nil
}

// Legacy converts an optimize request into the legacy form.
func (r OptimizeRequest) Legacy() LegacyRequest {
	out := LegacyRequest{Structures: r.Structures}
	for id := range r.Explosives {
		out.Explosives = append(out.Explosives, id)
	}
	return out
}

// WholeQuantity converts v to an int, failing with ErrInvalidQuantity when
// v is not a whole number. Sign checks are left to the engine.
func WholeQuantity(id string, v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, InvalidQuantity(id, v)
	}
	return int(v), nil
}
