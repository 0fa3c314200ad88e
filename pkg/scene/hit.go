package scene

import "github.com/solarlune/resolv"

const (
	// hitSpaceResolution maps scene fractions onto the integer grid of the collision space
	hitSpaceResolution = 1024
	hitSpaceCellSize   = 16

	hitSpaceTagPiece = "piece"
	hitSpaceTagProbe = "probe"
)

// hitSpace indexes piece bounds for point queries.
type hitSpace struct {
	space   *resolv.Space
	objects map[string]*resolv.Object
}

func newHitSpace() *hitSpace {
	return &hitSpace{
		space:   resolv.NewSpace(hitSpaceResolution, hitSpaceResolution, hitSpaceCellSize, hitSpaceCellSize),
		objects: make(map[string]*resolv.Object),
	}
}

func (h *hitSpace) put(id string, r Rect) {
	x, y, w, h2 := r.X*hitSpaceResolution, r.Y*hitSpaceResolution, r.W*hitSpaceResolution, r.H*hitSpaceResolution
	if obj, ok := h.objects[id]; ok {
		obj.X, obj.Y, obj.W, obj.H = x, y, w, h2
		obj.Update()
		return
	}
	obj := resolv.NewObject(x, y, w, h2, hitSpaceTagPiece)
	obj.Data = id
	h.space.Add(obj)
	h.objects[id] = obj
}

func (h *hitSpace) remove(id string) {
	obj, ok := h.objects[id]
	if !ok {
		return
	}
	h.space.Remove(obj)
	delete(h.objects, id)
}

func (h *hitSpace) clear() {
	for id := range h.objects {
		h.remove(id)
	}
}

// candidates returns the ids of pieces whose bounds may contain the point.
// Results share collision cells with the point and must still be checked exactly.
func (h *hitSpace) candidates(x, y float64) []string {
	probe := resolv.NewObject(x*hitSpaceResolution, y*hitSpaceResolution, 1, 1, hitSpaceTagProbe)
	h.space.Add(probe)
	defer h.space.Remove(probe)

	collision := probe.Check(0, 0, hitSpaceTagPiece)
	if collision == nil {
		return nil
	}
	ids := make([]string, 0, len(collision.Objects))
	for _, obj := range collision.Objects {
		if id, ok := obj.Data.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
